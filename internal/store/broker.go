package store

import "sync"

// subscriberBuffer is how many updates a slow subscriber may lag behind
// before updates to it are dropped.
const subscriberBuffer = 32

// Broker fans user state writes out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the update.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
}

type subscription struct {
	teamID string
	ch     chan UserState
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*subscription)}
}

// Subscribe registers for writes to teamID ("" for every team). The cancel
// func unregisters and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe(teamID string) (<-chan UserState, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscription{teamID: teamID, ch: make(chan UserState, subscriberBuffer)}
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers s to every matching subscriber.
func (b *Broker) Publish(s UserState) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.teamID != "" && sub.teamID != s.TeamID {
			continue
		}
		select {
		case sub.ch <- s:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
