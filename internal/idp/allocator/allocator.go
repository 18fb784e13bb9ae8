// Package allocator generates candidate v3 and v2 identifiers and
// probes the Store for uniqueness, bounded by a configurable retry
// budget (spec §4.2, Design Notes §9).
package allocator

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/scieloorg/id-provider/internal/idperrors"
)

// alphabet excludes visually ambiguous characters (0/O, 1/I/l) per
// project convention (spec §6).
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

const v3Length = 23

// DefaultMaxAttempts bounds the uniqueness-probe retry loop (Design
// Notes §9: "bound the loop to a configurable maximum, e.g., 64").
const DefaultMaxAttempts = 64

// ExistenceChecker is the subset of the Store contract the Allocator
// needs; kept narrow so tests can fake it without pulling in the full
// store.Store interface.
type ExistenceChecker interface {
	ExistsV3(ctx context.Context, v3 string) (bool, error)
	ExistsV2(ctx context.Context, v2 string) (bool, error)
}

// Allocator draws identifiers and probes a Store for uniqueness.
type Allocator struct {
	store       ExistenceChecker
	maxAttempts int
}

// New returns an Allocator bounded to maxAttempts uniqueness probes
// per call. maxAttempts <= 0 is replaced with DefaultMaxAttempts.
func New(store ExistenceChecker, maxAttempts int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{store: store, maxAttempts: maxAttempts}
}

// FreshV3 draws random 23-character identifiers from the
// ambiguity-free alphabet until the Store reports one as unused.
func (a *Allocator) FreshV3(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		candidate, err := randomV3()
		if err != nil {
			return "", fmt.Errorf("draw v3 candidate: %w", err)
		}
		exists, err := a.store.ExistsV3(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("%w: %v", idperrors.ErrStoreUnavailable, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", &idperrors.AllocationError{Kind: "v3", Attempts: a.maxAttempts}
}

// FreshV2 formats S{issn}{year}{suffix} candidates, deriving the
// 9-digit suffix from the current wall clock (digits of the Unix
// timestamp, discarding the first 5, zero-padded right — spec §4.2),
// until the Store reports one as unused. Fails with
// idperrors.ErrCannotAllocateV2 when issn or year is empty.
func (a *Allocator) FreshV2(ctx context.Context, issn, year string) (string, error) {
	if issn == "" || year == "" {
		return "", idperrors.ErrCannotAllocateV2
	}
	normalizedIssn := stripNonDigits(issn)
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		candidate := formatV2(normalizedIssn, year, v2Suffix(time.Now(), attempt))
		exists, err := a.store.ExistsV2(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("%w: %v", idperrors.ErrStoreUnavailable, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", &idperrors.AllocationError{Kind: "v2", Attempts: a.maxAttempts}
}

func randomV3() (string, error) {
	buf := make([]byte, v3Length)
	alphaLen := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphaLen)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// v2Suffix derives the 9-digit suffix from the Unix timestamp: take
// its decimal digits, discard the first 5, zero-pad right to 9 digits
// (spec §4.2). The first attempt uses the timestamp untouched; a
// collision retry (attempt > 1) offsets the resulting number by
// attempt-1, wrapping within 9 digits, so repeated probes within the
// same second still produce distinct candidates.
func v2Suffix(now time.Time, attempt int) string {
	digits := strconv.FormatInt(now.Unix(), 10)
	if len(digits) > 5 {
		digits = digits[5:]
	} else {
		digits = ""
	}
	for len(digits) < 9 {
		digits += "0"
	}
	if len(digits) > 9 {
		digits = digits[:9]
	}
	if attempt > 1 {
		n, _ := strconv.Atoi(digits)
		n = (n + attempt - 1) % 1_000_000_000
		digits = fmt.Sprintf("%09d", n)
	}
	return digits
}

func formatV2(issn, year, suffix string) string {
	return fmt.Sprintf("S%s%s%s", issn, year, suffix)
}

func stripNonDigits(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, byte(r))
		}
	}
	return string(out)
}
