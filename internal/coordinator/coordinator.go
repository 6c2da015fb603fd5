package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jgoulah/kubscraper/internal/kub"
	"github.com/jgoulah/kubscraper/internal/stats"
)

// Fetcher retrieves a full usage snapshot from the provider. Satisfied by
// *kub.Client.
type Fetcher interface {
	RetrieveLast31Days(ctx context.Context) (*kub.Snapshot, error)
}

// UpdateFailedError wraps any transient refresh failure: network errors,
// timeouts, malformed responses. The scheduler should try again next
// interval; nothing is user-actionable.
type UpdateFailedError struct {
	Err error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("update failed: %v", e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// Coordinator runs refresh cycles and owns the committed snapshot. Callers
// only ever observe the last fully successful snapshot; a failed refresh
// leaves it untouched. The caller is responsible for serializing Refresh
// invocations.
type Coordinator struct {
	fetcher  Fetcher
	importer *stats.Importer

	mu       sync.RWMutex
	snapshot *kub.Snapshot
}

// New creates a coordinator. The importer may be nil to skip statistics
// import (used by the summary-only paths).
func New(fetcher Fetcher, importer *stats.Importer) *Coordinator {
	return &Coordinator{
		fetcher:  fetcher,
		importer: importer,
	}
}

// Refresh runs one cycle: fetch the trailing 31 days for every provisioned
// service, import new statistic points, then commit the snapshot. Errors
// are classified: authentication and unexpected-service failures propagate
// as-is, everything else wraps in *UpdateFailedError.
func (c *Coordinator) Refresh(ctx context.Context) (*kub.Snapshot, error) {
	snap, err := c.fetcher.RetrieveLast31Days(ctx)
	if err != nil {
		return nil, classify(err)
	}

	if c.importer != nil {
		if _, err := c.importer.Import(snap.Usage); err != nil {
			return nil, classify(err)
		}
	}

	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	return snap, nil
}

func classify(err error) error {
	var authErr *kub.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	var svcErr *kub.UnexpectedServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	return &UpdateFailedError{Err: err}
}

// Snapshot returns the last committed snapshot, or nil before the first
// successful refresh.
func (c *Coordinator) Snapshot() *kub.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// MonthlyUsage returns the committed current-month usage for a service, or
// nil when no snapshot exists yet.
func (c *Coordinator) MonthlyUsage(utility kub.UtilityType) *float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil
	}
	return c.snapshot.MonthlyTotal[utility].Usage
}

// MonthlyCost returns the committed current-month cost for a service, or
// nil when no snapshot exists yet.
func (c *Coordinator) MonthlyCost(utility kub.UtilityType) *float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil
	}
	return c.snapshot.MonthlyTotal[utility].Cost
}

// Services returns the raw service metadata from the committed snapshot.
func (c *Coordinator) Services() []kub.ServicePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil
	}
	return c.snapshot.Services
}
