package ledger

import (
	"burnbin/metrics"
	"burnbin/pkg/domain"
	"burnbin/svc/util"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Store is a backend that applies the create and consume protocol
// atomically. Implementations: db.Redis, db.SQLite, cache.LRU.
type Store interface {
	Backend() string
	// CreatePaste inserts rec unless its id is taken, in which case it
	// returns domain.ErrPasteExists and leaves the existing record alone.
	CreatePaste(ctx context.Context, rec *domain.PasteRecord) error
	// ConsumeView evaluates and, only when ok, spends one view as a single
	// indivisible step.
	ConsumeView(ctx context.Context, id string, nowMs int64) (domain.Outcome, error)
	Ping(ctx context.Context) error
	Close() error
}

type Ledger struct {
	store    Store
	shutdown atomic.Bool
	opWg     sync.WaitGroup
}

func New(s Store) *Ledger {
	if s == nil {
		panic("ledger: nil store")
	}
	return &Ledger{store: s}
}
func (l *Ledger) Backend() string {
	return l.store.Backend()
}

// Create validates p and persists its initial record with no views used.
func (l *Ledger) Create(ctx context.Context, p domain.CreateParams) error {
	if l.shutdown.Load() {
		return domain.ErrShuttingDown
	}
	l.opWg.Add(1)
	defer l.opWg.Done()
	if err := p.Validate(); err != nil {
		return err
	}
	start := time.Now()
	err := l.store.CreatePaste(ctx, p.Record())
	l.observe("create", start, err)
	if errors.Is(err, domain.ErrPasteExists) {
		return err
	}
	if err != nil {
		util.Error().Err(err).
			Str("request_id", util.GetRequestID(ctx)).
			Str("backend", l.store.Backend()).
			Msg("create paste failed")
		return errors.Wrap(err, "create paste")
	}
	metrics.PasteCreated.Inc()
	util.Debug().
		Str("request_id", util.GetRequestID(ctx)).
		Bool("ttl", p.TTLSeconds != nil).
		Bool("max_views", p.MaxViews != nil).
		Int("size", len(p.Content)).
		Msg("paste created")
	return nil
}

// ConsumeView is the only read path. Every call that returns an ok outcome
// has spent exactly one view.
func (l *Ledger) ConsumeView(ctx context.Context, id string, nowMs int64) (domain.Outcome, error) {
	if l.shutdown.Load() {
		return domain.Outcome{}, domain.ErrShuttingDown
	}
	l.opWg.Add(1)
	defer l.opWg.Done()
	if id == "" {
		metrics.ViewOutcomes.WithLabelValues(domain.StatusMissing.String()).Inc()
		return domain.Missing(), nil
	}
	start := time.Now()
	out, err := l.store.ConsumeView(ctx, id, nowMs)
	l.observe("consume", start, err)
	if err != nil {
		util.Error().Err(err).
			Str("request_id", util.GetRequestID(ctx)).
			Str("backend", l.store.Backend()).
			Msg("consume view failed")
		return domain.Outcome{}, errors.Wrap(err, "consume view")
	}
	metrics.ViewOutcomes.WithLabelValues(out.Status.String()).Inc()
	return out, nil
}

// Ping reports whether the store answers. Failures are logged, never returned.
func (l *Ledger) Ping(ctx context.Context) bool {
	if err := l.store.Ping(ctx); err != nil {
		metrics.StoreUp.Set(0)
		util.Warn().Err(err).Str("backend", l.store.Backend()).Msg("store ping failed")
		return false
	}
	metrics.StoreUp.Set(1)
	return true
}

// Close stops accepting calls, waits for in-flight ones and closes the store.
func (l *Ledger) Close() error {
	if !l.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		l.opWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		util.Warn().Msg("ledger operations didn't finish in time")
	}
	return l.store.Close()
}
func (l *Ledger) observe(op string, start time.Time, err error) {
	metrics.StoreOpDuration.WithLabelValues(l.store.Backend(), op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, domain.ErrPasteExists) {
		metrics.StorageErrors.WithLabelValues(op).Inc()
	}
}
