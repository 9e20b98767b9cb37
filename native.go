package main

import (
	"context"
	"sync"
)

// nativeDropHost is the host-side drop channel: it can be armed and
// disarmed, and it notifies subscribers with raw path strings.
type nativeDropHost interface {
	ChannelToggler
	NativeDropNotifier
	install(ctx context.Context) error
	uninstall()
}

// dropSubscribers fans native drop notifications out to subscribers.
type dropSubscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]func([]string)
}

// OnNativeDrop implements NativeDropNotifier.
func (s *dropSubscribers) OnNativeDrop(fn func(paths []string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		s.subs = make(map[int]func([]string))
	}
	id := s.next
	s.next++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// publish delivers paths to every current subscriber.
func (s *dropSubscribers) publish(paths []string) {
	if len(paths) == 0 {
		return
	}
	s.mu.Lock()
	fns := make([]func([]string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(paths)
	}
}

func (s *dropSubscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
