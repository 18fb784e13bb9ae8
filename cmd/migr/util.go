package main

import (
	"bufio"
	"os"
)

// firstErr returns the first non-nil error, checking submit (queue
// dispatch) before the task's own result — a submit failure (e.g.
// context cancellation) always takes precedence.
func firstErr(submitErr, taskErr error) error {
	if submitErr != nil {
		return submitErr
	}
	return taskErr
}

// readLines reads path as a newline-separated list, trimming nothing —
// callers trim and skip blanks themselves.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
