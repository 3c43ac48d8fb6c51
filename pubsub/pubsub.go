// Package pubsub implements a generic publish-subscribe interface.
//
// Subscribers receive broadcast values on their own channel, so a slow
// subscriber never blocks the publisher or its peers.
package pubsub

import (
	"sync"

	"github.com/eapache/channels"
)

// OnSubscribeHook is called with the channel of a new subscription before
// it is registered with the broker.
type OnSubscribeHook func(channels.Channel)

type broadcastedValue struct {
	v interface{}
}

// Subscription is a Broker subscription instance.
type Subscription struct {
	b  *Broker
	ch channels.Channel
}

// Untyped returns the subscription's raw output channel.
func (s *Subscription) Untyped() <-chan interface{} {
	return s.ch.Out()
}

// Unwrap ties the read end of the subscription to the provided typed
// channel. The typed channel is closed when the subscription is closed.
func (s *Subscription) Unwrap(ch interface{}) {
	channels.Unwrap(s.ch, ch)
}

// Close unsubscribes from the Broker.
func (s *Subscription) Close() {
	s.b.unsubscribe(s)
}

// Broker is a pub/sub broker instance.
type Broker struct {
	sync.Mutex

	subscribers     map[*Subscription]bool
	lastBroadcasted *broadcastedValue

	onSubscribeHook    OnSubscribeHook
	pubLastOnSubscribe bool
}

// NewBroker creates a new broker. If pubLastOnSubscribe is set, every new
// subscriber first receives the most recently broadcast value.
func NewBroker(pubLastOnSubscribe bool) *Broker {
	return &Broker{
		subscribers:        make(map[*Subscription]bool),
		pubLastOnSubscribe: pubLastOnSubscribe,
	}
}

// NewBrokerEx creates a new broker with a default OnSubscribeHook.
func NewBrokerEx(onSubscribeHook OnSubscribeHook) *Broker {
	b := NewBroker(false)
	b.onSubscribeHook = onSubscribeHook
	return b
}

// Subscribe subscribes to the Broker's broadcasts with an unbounded buffer.
func (b *Broker) Subscribe() *Subscription {
	return b.SubscribeBuffered(int64(channels.Infinity))
}

// SubscribeBuffered subscribes with a ring buffer of the given size. When
// the buffer is full the oldest undelivered value is overwritten.
func (b *Broker) SubscribeBuffered(buffer int64) *Subscription {
	return b.SubscribeEx(buffer, nil)
}

// SubscribeEx subscribes with a buffer and a per-subscription
// OnSubscribeHook that overrides the broker's default.
func (b *Broker) SubscribeEx(buffer int64, onSubscribeHook OnSubscribeHook) *Subscription {
	var ch channels.Channel
	if buffer == int64(channels.Infinity) {
		ch = channels.NewInfiniteChannel()
	} else {
		ch = channels.NewRingChannel(channels.BufferCap(buffer))
	}

	sub := &Subscription{
		b:  b,
		ch: ch,
	}

	b.Lock()
	defer b.Unlock()

	switch {
	case onSubscribeHook != nil:
		onSubscribeHook(ch)
	case b.onSubscribeHook != nil:
		b.onSubscribeHook(ch)
	}

	b.subscribers[sub] = true

	if b.pubLastOnSubscribe && b.lastBroadcasted != nil {
		ch.In() <- b.lastBroadcasted.v
	}

	return sub
}

// Broadcast sends v to every current subscriber.
func (b *Broker) Broadcast(v interface{}) {
	b.Lock()
	defer b.Unlock()

	for sub := range b.subscribers {
		sub.ch.In() <- v
	}

	if b.pubLastOnSubscribe {
		b.lastBroadcasted = &broadcastedValue{v}
	}
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker) SubscriberCount() int {
	b.Lock()
	defer b.Unlock()
	return len(b.subscribers)
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.Lock()
	defer b.Unlock()

	if !b.subscribers[sub] {
		return
	}
	delete(b.subscribers, sub)
	sub.ch.Close()
}
