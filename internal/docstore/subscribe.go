package docstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sync"
	"sync/atomic"

	"shivuk/internal/logging"
)

type subscription struct {
	store      *SQLiteStore
	collection string
	query      Query
	fn         SnapshotFunc

	signal chan struct{}
	done   chan struct{}
	once   sync.Once

	last   []byte
	forced atomic.Bool
}

// Subscribe delivers the ordered document set of collection now and after
// every change. Every local write to collection yields a delivery; refreshes
// triggered by other processes skip a result identical to the last one.
func (s *SQLiteStore) Subscribe(collection string, q Query, fn SnapshotFunc) (Subscription, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	sub := &subscription{
		store:      s,
		collection: collection,
		query:      q,
		fn:         fn,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errStoreClosed
	}
	s.subs[sub] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	sub.signal <- struct{}{}
	go sub.run()
	return sub, nil
}

func (sub *subscription) run() {
	defer sub.store.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case <-sub.signal:
			sub.deliver()
		}
	}
}

func (sub *subscription) deliver() {
	select {
	case <-sub.done:
		return
	default:
	}
	docs, err := sub.store.List(context.Background(), sub.collection, sub.query)
	if err != nil {
		logging.WarnWithContext(sub.store.logger, "snapshot query failed", "snapshot_failed",
			logging.String(logging.FieldCollection, sub.collection),
			logging.Error(err),
			logging.String(logging.FieldImpact, "local state keeps the previous snapshot"),
		)
		sub.fn(nil, err)
		return
	}
	forced := sub.forced.Swap(false)
	sum := fingerprint(docs)
	if !forced && sub.last != nil && bytes.Equal(sum, sub.last) {
		return
	}
	sub.last = sum
	sub.fn(docs, nil)
}

func (sub *subscription) Close() {
	sub.once.Do(func() {
		close(sub.done)
		sub.store.mu.Lock()
		delete(sub.store.subs, sub)
		sub.store.mu.Unlock()
	})
}

func (sub *subscription) poke() {
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (s *SQLiteStore) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.collection == collection {
			sub.forced.Store(true)
			sub.poke()
		}
	}
}

func (s *SQLiteStore) notifyAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		sub.poke()
	}
}

func fingerprint(docs []Document) []byte {
	h := sha256.New()
	for _, doc := range docs {
		h.Write([]byte(doc.ID))
		h.Write([]byte{0})
		h.Write(doc.Data)
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}
