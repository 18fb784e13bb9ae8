package allocator

import (
	"context"
	"regexp"
	"testing"

	"github.com/scieloorg/id-provider/internal/idperrors"
)

type fakeChecker struct {
	v3s map[string]bool
	v2s map[string]bool
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{v3s: map[string]bool{}, v2s: map[string]bool{}}
}

func (f *fakeChecker) ExistsV3(ctx context.Context, v3 string) (bool, error) {
	return f.v3s[v3], nil
}

func (f *fakeChecker) ExistsV2(ctx context.Context, v2 string) (bool, error) {
	return f.v2s[v2], nil
}

func TestFreshV3IsUniqueAndRightLength(t *testing.T) {
	checker := newFakeChecker()
	a := New(checker, 0)

	v3, err := a.FreshV3(context.Background())
	if err != nil {
		t.Fatalf("FreshV3() error = %v", err)
	}
	if len(v3) != v3Length {
		t.Errorf("len(v3) = %d, want %d", len(v3), v3Length)
	}
}

func TestFreshV3ExhaustsBudget(t *testing.T) {
	a := New(alwaysExists{}, 3)
	_, err := a.FreshV3(context.Background())
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	var allocErr *idperrors.AllocationError
	if !asAllocationError(err, &allocErr) {
		t.Fatalf("error = %v, want *AllocationError", err)
	}
	if allocErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", allocErr.Attempts)
	}
}

type alwaysExists struct{}

func (alwaysExists) ExistsV3(ctx context.Context, v3 string) (bool, error) { return true, nil }
func (alwaysExists) ExistsV2(ctx context.Context, v2 string) (bool, error) { return true, nil }

func asAllocationError(err error, target **idperrors.AllocationError) bool {
	ae, ok := err.(*idperrors.AllocationError)
	if ok {
		*target = ae
	}
	return ok
}

func TestFreshV2Format(t *testing.T) {
	checker := newFakeChecker()
	a := New(checker, 0)

	v2, err := a.FreshV2(context.Background(), "1234-9876", "2022")
	if err != nil {
		t.Fatalf("FreshV2() error = %v", err)
	}
	re := regexp.MustCompile(`^S\d{8}2022\d{9}$`)
	if !re.MatchString(v2) {
		t.Errorf("v2 = %q does not match expected format", v2)
	}
}

func TestFreshV2RequiresIssnAndYear(t *testing.T) {
	a := New(newFakeChecker(), 0)
	if _, err := a.FreshV2(context.Background(), "", "2022"); err != idperrors.ErrCannotAllocateV2 {
		t.Errorf("error = %v, want ErrCannotAllocateV2", err)
	}
	if _, err := a.FreshV2(context.Background(), "1234-9876", ""); err != idperrors.ErrCannotAllocateV2 {
		t.Errorf("error = %v, want ErrCannotAllocateV2", err)
	}
}

func TestFreshV2RetriesOnCollision(t *testing.T) {
	checker := newFakeChecker()
	a := New(checker, 10)

	first, err := a.FreshV2(context.Background(), "1234-9876", "2022")
	if err != nil {
		t.Fatalf("FreshV2() error = %v", err)
	}
	checker.v2s[first] = true

	second, err := a.FreshV2(context.Background(), "1234-9876", "2022")
	if err != nil {
		t.Fatalf("FreshV2() second call error = %v", err)
	}
	if second == first {
		t.Error("expected a distinct candidate once the first is taken")
	}
}
