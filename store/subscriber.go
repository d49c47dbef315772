package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rerun-io/chunkstore"
)

// A Subscriber consumes the store's event stream to maintain derived state
// incrementally, instead of re-scanning the store after every mutation.
//
// OnStoreEvents is invoked synchronously after every mutating operation, in
// mutation order, with the events of that one mutation. Callbacks must not
// call back into the store; re-entrancy is undefined. A callback error is
// logged and contained: it never fails or aborts the mutation that
// triggered it.
type Subscriber interface {
	OnStoreEvents(events []Event) error
}

type registeredSubscriber struct {
	name string
	sub  Subscriber
}

// Subscribe registers sub under a stable name, in delivery order behind the
// subscribers already registered. Re-using a name is an EConflict.
func (s *Store) Subscribe(name string, sub Subscriber) error {
	if name == "" || sub == nil {
		return &chunkstore.Error{
			Code: chunkstore.EInvalid,
			Op:   "store.Subscribe",
			Msg:  "subscriber name and implementation are required",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.subs {
		if reg.name == name {
			return &chunkstore.Error{
				Code: chunkstore.EConflict,
				Op:   "store.Subscribe",
				Msg:  fmt.Sprintf("subscriber %q already registered", name),
			}
		}
	}
	s.subs = append(s.subs, registeredSubscriber{name: name, sub: sub})
	return nil
}

// Unsubscribe removes the subscriber registered under name.
func (s *Store) Unsubscribe(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, reg := range s.subs {
		if reg.name == name {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return nil
		}
	}
	return &chunkstore.Error{
		Code: chunkstore.ENotFound,
		Op:   "store.Unsubscribe",
		Msg:  fmt.Sprintf("no subscriber %q", name),
	}
}

// SubscriberNames returns the registered names in delivery order.
func (s *Store) SubscriberNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.subs))
	for i, reg := range s.subs {
		out[i] = reg.name
	}
	return out
}

// Subscriber returns the subscriber registered under name.
func (s *Store) Subscriber(name string) (Subscriber, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reg := range s.subs {
		if reg.name == name {
			return reg.sub, true
		}
	}
	return nil, false
}

// dispatchLocked delivers events to every subscriber in registration order.
// Callers hold the write lock, which is what serializes deliveries into
// mutation order.
func (s *Store) dispatchLocked(events []Event) {
	if len(events) == 0 {
		return
	}

	for _, reg := range s.subs {
		s.deliver(reg, events)
	}
}

// deliver invokes one callback, containing errors and panics.
func (s *Store) deliver(reg registeredSubscriber, events []Event) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.SubscriberFailures.With(s.metrics.Labels()).Inc()
			s.logger.Error("store subscriber panicked",
				zap.String("subscriber", reg.name),
				zap.Any("panic", r))
		}
	}()

	if err := reg.sub.OnStoreEvents(events); err != nil {
		s.metrics.SubscriberFailures.With(s.metrics.Labels()).Inc()
		s.logger.Error("store subscriber failed",
			zap.String("subscriber", reg.name),
			zap.Error(err))
	}
}
