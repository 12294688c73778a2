package notify

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"chainScope/internal/model"
)

// UpdateKind discriminates notifier updates.
type UpdateKind int

const (
	BlockUpdate UpdateKind = iota
	TxUpdate
)

// Update is one post-commit notification. Exactly one of Block and Tx is set.
type Update struct {
	Kind  UpdateKind
	Block *model.Block
	Tx    *model.Tx
}

// Subscription is one subscriber's bounded update queue. When the queue is
// full, further updates are dropped and counted rather than blocking the
// ingestion path.
type Subscription struct {
	name    string
	ch      chan Update
	dropped atomic.Uint64
}

// Updates is the subscriber's receive channel. Closed on Unsubscribe/Close.
func (s *Subscription) Updates() <-chan Update {
	return s.ch
}

// Dropped reports how many updates this subscriber missed.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Notifier fans block and transaction updates out to in-process subscribers.
// Publication must happen strictly after the owning transaction commits;
// delivery to each subscriber is isolated and never blocks the publisher.
type Notifier struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{logger: logger, subs: make(map[string]*Subscription)}
}

// Subscribe registers a named subscriber with the given queue depth. An
// existing subscription under the same name is replaced and closed.
func (n *Notifier) Subscribe(name string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	sub := &Subscription{name: name, ch: make(chan Update, buffer)}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(sub.ch)
		return sub
	}
	if prev, ok := n.subs[name]; ok {
		close(prev.ch)
	}
	n.subs[name] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subs[name]; ok {
		close(sub.ch)
		delete(n.subs, name)
	}
}

// PublishBlock emits one committed block to every subscriber.
func (n *Notifier) PublishBlock(b *model.Block) {
	n.publish(Update{Kind: BlockUpdate, Block: b})
}

// PublishTx emits one committed transaction to every subscriber.
func (n *Notifier) PublishTx(tx *model.Tx) {
	n.publish(Update{Kind: TxUpdate, Tx: tx})
}

func (n *Notifier) publish(u Update) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	for _, sub := range n.subs {
		select {
		case sub.ch <- u:
		default:
			dropped := sub.dropped.Add(1)
			n.logger.Warn("subscriber queue full, update dropped",
				zap.String("subscriber", sub.name),
				zap.Uint64("dropped_total", dropped),
			)
		}
	}
}

// Close drains the notifier: all subscriber channels are closed and further
// publishes become no-ops.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for name, sub := range n.subs {
		close(sub.ch)
		delete(n.subs, name)
	}
}
