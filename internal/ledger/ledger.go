package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"freshledger/internal/domain"
)

// BaseEventID is the id assigned to the first appended event; subsequent
// appends increment by one with no gaps.
const BaseEventID = 1000

var ErrNotFound = errors.New("not found")

// Ledger is an append-only, in-memory ordered log of supply-chain events.
// It owns id assignment, timestamping, and the single mutable annotation
// (the violation flag). Appends and annotations are serialized by a mutex so
// one ledger can back the HTTP surface; the CLI path is single-threaded and
// pays nothing for it.
type Ledger struct {
	mu     sync.RWMutex
	events []domain.Event
	nextID int64
	Now    func() time.Time
}

func New() *Ledger {
	return &Ledger{nextID: BaseEventID, Now: time.Now}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Append assigns the next id, stamps the current time, and stores the event
// at the tail of the log. The input is trusted and the append never fails;
// unrecognized event types are stored but never dispatched to an evaluator.
func (l *Ledger) Append(ctx context.Context, in domain.EventInput) domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := domain.Event{
		ID:        l.nextID,
		ActorID:   in.ActorID,
		ProductID: in.ProductID,
		Location:  in.Location,
		Type:      in.Type,
		TS:        l.now().UTC().Format(time.RFC3339),
		Details:   in.Details,
	}
	l.nextID++
	l.events = append(l.events, e)
	return e
}

// Get returns the event with the given id.
func (l *Ledger) Get(ctx context.Context, id int64) (domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, _, err := l.locate(id)
	return e, err
}

// locate is called with the lock held.
func (l *Ledger) locate(id int64) (domain.Event, int, error) {
	idx := int(id - BaseEventID)
	if idx < 0 || idx >= len(l.events) {
		return domain.Event{}, 0, ErrNotFound
	}
	return l.events[idx], idx, nil
}

// MarkViolation records the violation flag on an already-appended event.
// The flag is written at most once: re-marking with the same value is a
// no-op, flipping an already-set flag is rejected.
func (l *Ledger) MarkViolation(ctx context.Context, id int64, flag bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, idx, err := l.locate(id)
	if err != nil {
		return fmt.Errorf("mark violation on event %d: %w", id, err)
	}
	if e.Violation != nil {
		if *e.Violation == flag {
			return nil
		}
		return fmt.Errorf("event %d already evaluated; violation flag is immutable", id)
	}
	v := flag
	l.events[idx].Violation = &v
	return nil
}

// FindByProductWithViolation returns, in append order, every event for the
// product whose violation flag is exactly true. An absent flag counts as
// false. The result is a snapshot of ledger state at call time; re-querying
// after further appends reflects them.
func (l *Ledger) FindByProductWithViolation(ctx context.Context, productID string) []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var res []domain.Event
	for _, e := range l.events {
		if e.ProductID == productID && e.ViolationDetected() {
			res = append(res, e)
		}
	}
	return res
}

// Filters narrows List output. Zero values match everything.
type Filters struct {
	ProductID string
	Type      domain.EventType
	Limit     int
}

// List returns events in append order, optionally filtered.
func (l *Ledger) List(ctx context.Context, f Filters) []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var res []domain.Event
	for _, e := range l.events {
		if f.ProductID != "" && e.ProductID != f.ProductID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		res = append(res, e)
		if f.Limit > 0 && len(res) == f.Limit {
			break
		}
	}
	return res
}

// Len reports the number of stored events.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
