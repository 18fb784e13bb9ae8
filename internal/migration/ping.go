package migration

import (
	"context"

	"github.com/scieloorg/id-provider/internal/queue"
)

// PingStage is a fourth, always-available queue stage that round-trips
// a payload through a worker pool and back. It mirrors the original
// implementation's trivial "example" task (scielo_core/migration/tasks.py),
// reproduced here so tests can assert the queue plumbing works
// end-to-end without touching Postgres (SPEC_FULL.md §4.6 supplement).
// No migr verb calls it.
func PingStage(ctx context.Context, q queue.Queue, payload string) (string, error) {
	result := make(chan string, 1)
	err := queue.SubmitAndWait(ctx, q, func() {
		result <- payload
	})
	if err != nil {
		return "", err
	}
	return <-result, nil
}
