package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/jgoulah/kubscraper/internal/kub"
)

type fakeFetcher struct {
	snap *kub.Snapshot
	err  error
}

func (f *fakeFetcher) RetrieveLast31Days(ctx context.Context) (*kub.Snapshot, error) {
	return f.snap, f.err
}

func snapshotWithTotals(usage, cost float64) *kub.Snapshot {
	return &kub.Snapshot{
		Usage: kub.UsageSeries{},
		MonthlyTotal: kub.MonthlyTotal{
			kub.Electricity: {Usage: &usage, Cost: &cost},
		},
		Services:    []kub.ServicePoint{{ID: "sp-e", Type: "E-RES"}},
		ServiceList: []kub.UtilityType{kub.Electricity},
	}
}

func TestRefreshCommitsSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{snap: snapshotWithTotals(42.0, 7.5)}
	coord := New(fetcher, nil)

	if coord.Snapshot() != nil {
		t.Fatal("no snapshot should exist before the first refresh")
	}
	if coord.MonthlyUsage(kub.Electricity) != nil {
		t.Fatal("usage accessor should be nil before the first refresh")
	}

	snap, err := coord.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if coord.Snapshot() != snap {
		t.Error("committed snapshot should be the one returned")
	}
	if got := coord.MonthlyUsage(kub.Electricity); got == nil || *got != 42.0 {
		t.Errorf("MonthlyUsage = %v, want 42.0", got)
	}
	if got := coord.MonthlyCost(kub.Electricity); got == nil || *got != 7.5 {
		t.Errorf("MonthlyCost = %v, want 7.5", got)
	}
	if len(coord.Services()) != 1 {
		t.Errorf("Services = %v, want one entry", coord.Services())
	}
}

func TestRefreshAuthErrorKeepsSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{snap: snapshotWithTotals(42.0, 7.5)}
	coord := New(fetcher, nil)

	previous, err := coord.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	fetcher.snap = nil
	fetcher.err = &kub.AuthError{StatusCode: 401, Message: "authentication failed"}

	_, err = coord.Refresh(context.Background())
	var authErr *kub.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError to propagate unwrapped, got %v", err)
	}
	var updateErr *UpdateFailedError
	if errors.As(err, &updateErr) {
		t.Fatal("auth errors must not be classified as transient")
	}
	if coord.Snapshot() != previous {
		t.Error("failed refresh must leave the previous snapshot in place")
	}
}

func TestRefreshUnexpectedServicePropagates(t *testing.T) {
	fetcher := &fakeFetcher{err: &kub.UnexpectedServiceError{TypeCode: "X-RES", ServicePointID: "sp9"}}
	coord := New(fetcher, nil)

	_, err := coord.Refresh(context.Background())
	var svcErr *kub.UnexpectedServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected UnexpectedServiceError to propagate unwrapped, got %v", err)
	}
}

func TestRefreshWrapsTransientErrors(t *testing.T) {
	cause := errors.New("connection refused")
	fetcher := &fakeFetcher{err: cause}
	coord := New(fetcher, nil)

	_, err := coord.Refresh(context.Background())
	var updateErr *UpdateFailedError
	if !errors.As(err, &updateErr) {
		t.Fatalf("expected UpdateFailedError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should preserve the cause")
	}
	if coord.Snapshot() != nil {
		t.Error("no snapshot should be committed after a failed refresh")
	}
}
