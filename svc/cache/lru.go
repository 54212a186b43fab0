package cache

import (
	"burnbin/pkg/domain"
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is an in-process paste store. It is not shared between processes.
// When full, the least recently used paste is evicted and later reads of it
// are missing.
type LRU struct {
	c  *lru.Cache[string, domain.PasteRecord]
	mu sync.Mutex
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 1000000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, domain.PasteRecord](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}
func (l *LRU) Backend() string { return "memory" }

func (l *LRU) CreatePaste(ctx context.Context, p *domain.PasteRecord) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageFailure("create paste", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c.Contains(p.ID) {
		return domain.ErrPasteExists
	}
	l.c.Add(p.ID, p.Clone())
	return nil
}

// ConsumeView holds the store lock across the check and the increment.
func (l *LRU) ConsumeView(ctx context.Context, id string, nowMs int64) (domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.Outcome{}, domain.StorageFailure("consume view", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.c.Get(id)
	if !ok {
		return domain.Missing(), nil
	}
	if st := domain.Evaluate(&rec, nowMs); st != domain.StatusOK {
		return domain.Outcome{Status: st}, nil
	}
	rec.ViewsUsed++
	l.c.Add(id, rec)
	return domain.Consumed(&rec), nil
}
func (l *LRU) Ping(ctx context.Context) error {
	return ctx.Err()
}
func (l *LRU) Len() int {
	return l.c.Len()
}
func (l *LRU) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Purge()
	return nil
}
