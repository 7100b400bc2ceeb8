package bus

import "sync"

// Handle identifies a subscription. Handles are never reused.
type Handle uint64

// Observer receives published values.
type Observer[T any] interface {
	Notify(v T)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc[T any] func(v T)

func (f ObserverFunc[T]) Notify(v T) {
	f(v)
}

type subscription[T any] struct {
	handle   Handle
	observer Observer[T]
}

// Bus delivers values synchronously to every subscriber, in publish order.
// The subscriber list is copy-on-write: a publish notifies the observers that were
// subscribed when it started, regardless of subscribe or unsubscribe calls made meanwhile.
type Bus[T any] struct {
	publishLock sync.Mutex

	lock sync.Mutex
	next Handle
	subs []subscription[T]
}

func New[T any]() *Bus[T] {
	return &Bus[T]{}
}

func (s *Bus[T]) Subscribe(observer Observer[T]) Handle {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.next++
	subs := make([]subscription[T], len(s.subs), len(s.subs)+1)
	copy(subs, s.subs)
	s.subs = append(subs, subscription[T]{handle: s.next, observer: observer})
	return s.next
}

// Unsubscribe removes the subscription. Unknown handles are ignored.
func (s *Bus[T]) Unsubscribe(handle Handle) {
	s.lock.Lock()
	defer s.lock.Unlock()

	subs := make([]subscription[T], 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.handle != handle {
			subs = append(subs, sub)
		}
	}
	s.subs = subs
}

// Len returns the number of subscribed observers.
func (s *Bus[T]) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.subs)
}

// Publish returns after every current observer has been notified.
// Observers must not publish to the same bus from Notify.
func (s *Bus[T]) Publish(v T) {
	s.publishLock.Lock()
	defer s.publishLock.Unlock()

	s.lock.Lock()
	subs := s.subs
	s.lock.Unlock()

	for _, sub := range subs {
		sub.observer.Notify(v)
	}
}
