/*
Copyright 2024 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package srv

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Frame is a chunk of endpoint output delivered to fanout subscribers,
// or a nil-Data/EOF-true sentinel signalling the end of the stream.
type Frame struct {
	Data []byte
	EOF  bool
}

// Subscription is a live attachment to a Fanout. Frames() is closed
// once the subscriber is dropped (slow-consumer eviction) or the
// fanout is closed (session terminated).
type Subscription struct {
	id     ClientID
	ch     chan Frame
	fanout *Fanout
}

// Frames returns the channel of frames delivered to this subscriber, in
// FIFO order relative to every other live subscriber.
func (s *Subscription) Frames() <-chan Frame {
	return s.ch
}

// Close detaches the subscription from its fanout. Idempotent.
func (s *Subscription) Close() {
	s.fanout.unsubscribe(s.id)
}

// Fanout is a broadcast primitive distributing endpoint output to N
// attached clients. Each subscriber has its own bounded queue; a slow
// subscriber that overflows its queue is disconnected but does not
// block delivery to any other subscriber. Ordering within a subscriber
// is FIFO.
type Fanout struct {
	log       *logrus.Entry
	queueSize int

	mu     sync.Mutex
	subs   map[ClientID]chan Frame
	closed bool

	onDrop func(id ClientID)
}

// NewFanout constructs a Fanout with the given per-subscriber bounded
// queue size.
func NewFanout(queueSize int, log *logrus.Entry, onDrop func(id ClientID)) *Fanout {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Fanout{
		log:       log,
		queueSize: queueSize,
		subs:      make(map[ClientID]chan Frame),
		onDrop:    onDrop,
	}
}

// Subscribe attaches a new subscriber, identified by ClientID. Re-
// subscribing the same ClientID supersedes any prior subscription for
// that client: the old channel is closed and replaced.
func (f *Fanout) Subscribe(id ClientID) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	if old, ok := f.subs[id]; ok {
		close(old)
	}

	ch := make(chan Frame, f.queueSize)
	if f.closed {
		close(ch)
		return &Subscription{id: id, ch: ch, fanout: f}
	}
	f.subs[id] = ch

	return &Subscription{id: id, ch: ch, fanout: f}
}

func (f *Fanout) unsubscribe(id ClientID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
}

// Publish delivers data to every currently attached subscriber. A
// subscriber whose queue is full is dropped from the fanout; other
// subscribers are unaffected.
func (f *Fanout) Publish(data []byte) {
	f.broadcast(Frame{Data: data})
}

// Close marks the fanout closed so further Subscribe calls receive an
// already-closed channel, then sends an EOF frame to every attached
// subscriber whose queue has room for it and closes every subscriber
// channel exactly once.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subs
	f.subs = make(map[ClientID]chan Frame)
	f.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- Frame{EOF: true}:
		default:
			// Queue full: no room for the EOF frame; the close
			// below still ends the stream after the queued frames.
		}
		close(ch)
	}
}

// SubscriberCount returns the number of currently attached subscribers.
func (f *Fanout) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Fanout) broadcast(frame Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, ch := range f.subs {
		select {
		case ch <- frame:
		default:
			delete(f.subs, id)
			close(ch)
			if f.log != nil {
				f.log.WithField("client_id", id).Warn("Subscriber queue overflowed, dropping from fanout.")
			}
			if f.onDrop != nil {
				f.onDrop(id)
			}
		}
	}
}
