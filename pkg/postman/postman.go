// Package postman implements the process-wide typed message bus that
// subsystems use to talk to one another: a fixed set of named, bounded
// channels registered once at startup and sent on by many producers.
package postman

import (
	"errors"
	"sync"
)

// Channel names the postman's fixed set of mailboxes.
type Channel string

const (
	// DbCmdReq carries committed write commands to the database apply loop.
	DbCmdReq Channel = "db_cmd_req"
	// RaftMsg carries inbound peer Raft transport messages.
	RaftMsg Channel = "raft_msg"
	// RaftProposal carries local requests to propose a write or conf change.
	RaftProposal Channel = "raft_proposal"
	// Discover carries nodes observed by the discovery receiver.
	Discover Channel = "discover"
)

// ErrNotDelivered is returned by Send when no consumer has registered the
// channel; the send is a no-op, not an error condition callers must handle.
var ErrNotDelivered = errors.New("postman: not delivered, channel unregistered")

// Postman is the message bus. The zero value is not usable; use New.
type Postman struct {
	mu       sync.RWMutex
	mailbox  map[Channel]chan any
}

// New returns an empty bus with no channels registered.
func New() *Postman {
	return &Postman{mailbox: make(map[Channel]chan any)}
}

// Register creates channel's queue with the given capacity and returns the
// consumer end. It succeeds only once per channel; a second Register call
// for the same name returns ok=false and leaves the existing registration
// untouched, matching the bus's single-consumer-per-channel model.
func (p *Postman) Register(ch Channel, capacity int) (<-chan any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.mailbox[ch]; exists {
		return nil, false
	}
	queue := make(chan any, capacity)
	p.mailbox[ch] = queue
	return queue, true
}

// Send routes message to ch's queue. If ch was never registered, Send
// returns ErrNotDelivered immediately without blocking. If the queue is
// registered but full, Send blocks the caller (back-pressure) until space
// frees up or ctx-less cancellation isn't available — callers that need a
// cancellable send should select on done themselves using SendChan.
func (p *Postman) Send(ch Channel, message any) error {
	queue, ok := p.chanFor(ch)
	if !ok {
		return ErrNotDelivered
	}
	queue <- message
	return nil
}

// TrySend routes message without blocking; it reports false if the channel
// is unregistered or currently full.
func (p *Postman) TrySend(ch Channel, message any) bool {
	queue, ok := p.chanFor(ch)
	if !ok {
		return false
	}
	select {
	case queue <- message:
		return true
	default:
		return false
	}
}

// SendChan exposes the raw queue for ch so a caller can select between
// sending and a cancellation channel. The queue is returned bidirectional,
// so a caller can also receive from it alongside the registered consumer.
// It returns false if ch is unregistered.
func (p *Postman) SendChan(ch Channel) (chan any, bool) {
	queue, ok := p.chanFor(ch)
	return queue, ok
}

func (p *Postman) chanFor(ch Channel) (chan any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	queue, ok := p.mailbox[ch]
	return queue, ok
}
