package local

import (
	"context"
	"sync"
)

// Message is a pub/sub message delivered to subscribers.
type Message struct {
	Channel string
	Payload string
}

type subscriber struct {
	ch       chan *Message
	channels map[string]struct{}
}

// LocalPubSub is an in-process fan-out pub/sub. Publish never blocks;
// messages to a subscriber with a full buffer are dropped.
type LocalPubSub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	bufSize int
}

func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subs:    make(map[*subscriber]struct{}),
		bufSize: bufSize,
	}
}

func (p *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &Message{Channel: channel, Payload: message}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for sub := range p.subs {
		if _, ok := sub.channels[channel]; !ok {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// slow subscriber, drop
		}
	}
	return nil
}

// Subscribe registers interest in the given channels. The returned cancel
// func removes the subscription and closes the message channel.
func (p *LocalPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	sub := &subscriber{
		ch:       make(chan *Message, p.bufSize),
		channels: make(map[string]struct{}, len(channels)),
	}
	for _, c := range channels {
		sub.channels[c] = struct{}{}
	}

	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, sub)
			p.mu.Unlock()
			close(sub.ch)
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return sub.ch, cancel, nil
}
