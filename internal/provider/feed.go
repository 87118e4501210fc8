package provider

import "sync"

const subscriberBuffer = 32

// Feed fans events out to subscribers. Each subscriber sees events in send
// order; Send blocks while a subscriber's buffer is full.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Subscribe implements Provider.Subscribe.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	s := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]*subscriber)
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = s
	f.mu.Unlock()

	return s.ch, func() {
		s.once.Do(func() {
			close(s.done)
			f.mu.Lock()
			delete(f.subs, id)
			close(s.ch)
			f.mu.Unlock()
		})
	}
}

// Send delivers ev to every current subscriber.
func (f *Feed) Send(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
}

// Len returns the number of live subscribers.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
