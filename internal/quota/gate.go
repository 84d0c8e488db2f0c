// Package quota blocks callers until the search API has budget for the next
// request of a resource class.
package quota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/metrics"
)

// DefaultSafetyMargin is added to every wait so the reset has really happened.
const DefaultSafetyMargin = 10 * time.Second

// Budget is the remaining allowance of one resource class.
type Budget struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// BudgetReader reports the current budget per resource class. Reading it must
// not consume budget.
type BudgetReader interface {
	RateLimits(ctx context.Context) (map[string]Budget, error)
}

// Clock reads and waits on time.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Gate checks the budget before every request. It keeps no local state, so
// budget spent by other clients sharing the token is always seen.
type Gate struct {
	reader BudgetReader
	clock  Clock
	margin time.Duration
	onWait func(resource string, d time.Duration)
	logger *zap.Logger
}

// Option customizes a Gate.
type Option func(*Gate)

// WithSafetyMargin overrides DefaultSafetyMargin.
func WithSafetyMargin(margin time.Duration) Option {
	return func(g *Gate) {
		g.margin = margin
	}
}

// WithWaitObserver is called after every completed wait.
func WithWaitObserver(fn func(resource string, d time.Duration)) Option {
	return func(g *Gate) {
		g.onWait = fn
	}
}

// WithLogger sets the gate logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New builds a Gate.
func New(reader BudgetReader, clock Clock, opts ...Option) *Gate {
	g := &Gate{
		reader: reader,
		clock:  clock,
		margin: DefaultSafetyMargin,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire returns once resource has budget. With nothing left it sleeps until
// the reported reset plus the safety margin, so a reset that looks past under
// clock skew still waits out the rest of the margin.
func (g *Gate) Acquire(ctx context.Context, resource string) error {
	limits, err := g.reader.RateLimits(ctx)
	if err != nil {
		return fmt.Errorf("read rate limits: %w", err)
	}
	budget, ok := limits[resource]
	if !ok {
		return fmt.Errorf("rate limits carry no %q resource", resource)
	}
	if budget.Remaining > 0 {
		return nil
	}
	wait := budget.Reset.Add(g.margin).Sub(g.clock.Now())
	if wait <= 0 {
		return nil
	}
	g.logger.Info("quota exhausted; sleeping until reset",
		zap.String("resource", resource),
		zap.Time("reset", budget.Reset),
		zap.Duration("wait", wait),
	)
	if err := g.clock.Sleep(ctx, wait); err != nil {
		return fmt.Errorf("wait for %s quota: %w", resource, err)
	}
	metrics.ObserveQuotaWait(resource, wait)
	if g.onWait != nil {
		g.onWait(resource, wait)
	}
	return nil
}
