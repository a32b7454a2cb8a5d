package cartstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultDebounce is the quiet period a debounced flush waits for after
	// the last mutation before writing the cart to the persister.
	DefaultDebounce = 500 * time.Millisecond

	flushTimeout = 10 * time.Second
)

// Store is the single source of truth for the cart. All operations are
// serialized by an internal mutex; reads return copies so callers never
// share the underlying slice.
//
// Mutations update memory synchronously and enqueue a snapshot for the
// background flush loop, which coalesces rapid writes into one persisted
// snapshot per quiet period. Clear is the exception: it persists before
// returning, because it is the terminal step of a checkout.
type Store struct {
	log       logrus.FieldLogger
	persister Persister
	debounce  time.Duration

	mu      sync.RWMutex
	items   []LineItem
	loading bool

	pending chan []LineItem
	syncc   chan syncReq
	quit    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
}

// syncReq asks the flush loop to write the given snapshot immediately,
// superseding any pending debounced write.
type syncReq struct {
	items []LineItem
	done  chan error
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce overrides the debounce window for persistence writes.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// New creates a Store backed by the given persister and starts its flush
// loop. The store starts empty; call Refresh to load a persisted cart.
func New(persister Persister, log logrus.FieldLogger, opts ...Option) *Store {
	s := &Store{
		log:       log,
		persister: persister,
		debounce:  DefaultDebounce,
		pending:   make(chan []LineItem, 1),
		syncc:     make(chan syncReq),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.flushLoop()
	return s
}

// AddItem adds one unit of the given catalog item to the cart. If a line
// item with the same id already exists its quantity is incremented,
// otherwise a new line item is inserted with quantity 1.
func (s *Store) AddItem(item CatalogItem) {
	s.mu.Lock()
	found := false
	for i := range s.items {
		if s.items[i].ItemID == item.ItemID {
			s.items[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		s.items = append(s.items, LineItem{CatalogItem: item, Quantity: 1})
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.enqueue(snap)
}

// UpdateQuantity adds delta to the quantity of the line item with the given
// id. A resulting quantity <= 0 removes the line item entirely. An unknown
// id is a no-op.
func (s *Store) UpdateQuantity(itemID string, delta int32) {
	s.mu.Lock()
	changed := false
	for i := range s.items {
		if s.items[i].ItemID != itemID {
			continue
		}
		if q := s.items[i].Quantity + delta; q > 0 {
			s.items[i].Quantity = q
		} else {
			s.items = append(s.items[:i], s.items[i+1:]...)
		}
		changed = true
		break
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.enqueue(snap)
}

// RemoveItem deletes the line item with the given id regardless of its
// quantity. An unknown id is a no-op.
func (s *Store) RemoveItem(itemID string) {
	s.mu.Lock()
	changed := false
	for i := range s.items {
		if s.items[i].ItemID == itemID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			changed = true
			break
		}
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.enqueue(snap)
}

// Items returns a copy of the current cart in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// TotalPrice returns the sum of unitPrice * quantity over all line items.
// Accumulation is floating point; currency rounding belongs to the caller.
func (s *Store) TotalPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, it := range s.items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}

// TotalItems returns the sum of quantities over all line items.
func (s *Store) TotalItems() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int32
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Loading reports whether a Refresh is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Clear empties the cart and persists the empty state before returning.
// Unlike the debounced mutations this write is awaited: clearing follows a
// successful checkout and must be durable before the caller navigates away.
// Any pending debounced snapshot is dropped so it cannot resurrect the cart.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()

	req := syncReq{done: make(chan error, 1)}
	select {
	case s.syncc <- req:
	case <-s.quit:
		return s.persister.Save(ctx, nil)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		if err != nil {
			return fmt.Errorf("persist cleared cart: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh reloads the cart from the persister, replacing in-memory state.
// On failure the previous in-memory cart is kept and the error is returned;
// callers typically log it and carry on. Loading reports true while the
// read is in flight.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	items, err := s.persister.Load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("cart refresh failed, keeping in-memory cart")
		return fmt.Errorf("load cart: %w", err)
	}

	// Persisted data predating the quantity>=1 invariant may contain dead
	// rows; drop them instead of importing them.
	valid := items[:0]
	for _, it := range items {
		if it.Quantity >= 1 {
			valid = append(valid, it)
		}
	}

	s.mu.Lock()
	s.items = valid
	s.mu.Unlock()
	return nil
}

// Ping reports whether the persistence backend is reachable.
func (s *Store) Ping(ctx context.Context) bool {
	return s.persister.Ping(ctx)
}

// Close stops the flush loop, writing the latest pending snapshot first so
// a clean shutdown never loses mutations to the debounce window.
func (s *Store) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.quit) })
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// snapshotLocked copies the item slice. Callers must hold mu.
func (s *Store) snapshotLocked() []LineItem {
	snap := make([]LineItem, len(s.items))
	copy(snap, s.items)
	return snap
}

// enqueue hands a snapshot to the flush loop, replacing any snapshot that
// is still queued. Never blocks: a newer snapshot always supersedes an
// older one.
func (s *Store) enqueue(snap []LineItem) {
	for {
		select {
		case s.pending <- snap:
			return
		default:
		}
		select {
		case <-s.pending:
		default:
		}
	}
}

// flushLoop is the single writer to the persister. Debounced snapshots are
// coalesced: the timer restarts on every new snapshot and only the latest
// one is written once the window goes quiet. Synchronous requests (Clear)
// cancel whatever is pending and write immediately.
func (s *Store) flushLoop() {
	defer close(s.stopped)

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	var latest []LineItem
	dirty := false

	stopTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}

	for {
		select {
		case snap := <-s.pending:
			latest = snap
			if dirty {
				stopTimer()
			}
			timer.Reset(s.debounce)
			dirty = true

		case <-timer.C:
			if dirty {
				s.flush(latest)
				dirty = false
			}

		case req := <-s.syncc:
			if dirty {
				stopTimer()
				dirty = false
			}
			select {
			case <-s.pending:
			default:
			}
			req.done <- s.save(req.items)

		case <-s.quit:
			stopTimer()
			select {
			case snap := <-s.pending:
				latest, dirty = snap, true
			default:
			}
			if dirty {
				s.flush(latest)
			}
			return
		}
	}
}

// flush writes a debounced snapshot. Errors are logged and swallowed: the
// in-memory cart stays authoritative for the session and the next mutation
// will schedule another attempt.
func (s *Store) flush(items []LineItem) {
	if err := s.save(items); err != nil {
		s.log.WithError(err).Warn("cart flush failed, in-memory cart stays authoritative")
	}
}

func (s *Store) save(items []LineItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	return s.persister.Save(ctx, items)
}
