// Package signalfeed fans executed strategy signals out to live subscribers.
package signalfeed

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/strategy"
)

// AllStrategies subscribes to every strategy's signals
const AllStrategies = "*"

// ==============================================================================
// Broker - In-memory Pub/Sub for executed signals
// ==============================================================================

// Broker distributes signal records to subscribers.
// Publish never blocks: a full subscriber channel drops the record.
type Broker struct {
	mu sync.RWMutex

	// strategy name (or "*") → set of subscriptions
	subscribers map[string]map[*Subscription]bool

	channelSize int

	// Metrics
	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// Subscription represents a signal subscription
type Subscription struct {
	C        chan strategy.SignalRecord
	Strategy string // strategy name or "*"
}

// BrokerConfig holds broker configuration
type BrokerConfig struct {
	ChannelSize int // default: 64
}

// NewBroker creates a new broker
func NewBroker(config BrokerConfig) *Broker {
	if config.ChannelSize <= 0 {
		config.ChannelSize = 64
	}
	return &Broker{
		subscribers: make(map[string]map[*Subscription]bool),
		channelSize: config.ChannelSize,
	}
}

// Subscribe creates a subscription for one strategy, or all of them when name is empty or "*"
func (b *Broker) Subscribe(name string) *Subscription {
	if name == "" {
		name = AllStrategies
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		C:        make(chan strategy.SignalRecord, b.channelSize),
		Strategy: name,
	}
	if _, ok := b.subscribers[name]; !ok {
		b.subscribers[name] = make(map[*Subscription]bool)
	}
	b.subscribers[name][sub] = true

	log.Debug().Str("strategy", name).Msg("Signal feed: new subscription")
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sub.Strategy]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.subscribers, sub.Strategy)
	}
	close(sub.C)

	log.Debug().Str("strategy", sub.Strategy).Msg("Signal feed: unsubscribed")
}

// Publish delivers a record to the strategy's subscribers and to all-strategy subscribers
func (b *Broker) Publish(record strategy.SignalRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.published.Add(1)

	for sub := range b.subscribers[record.StrategyName] {
		b.send(sub, record)
	}
	for sub := range b.subscribers[AllStrategies] {
		b.send(sub, record)
	}
}

func (b *Broker) send(sub *Subscription, record strategy.SignalRecord) {
	select {
	case sub.C <- record:
		b.delivered.Add(1)
	default:
		// slow subscriber
		b.dropped.Add(1)
	}
}

// BrokerStats holds broker statistics
type BrokerStats struct {
	ActiveSubscribers int     `json:"active_subscribers"`
	TotalPublished    int64   `json:"total_published"`
	TotalDelivered    int64   `json:"total_delivered"`
	TotalDropped      int64   `json:"total_dropped"`
	DropRate          float64 `json:"drop_rate"` // percentage of deliveries
}

// GetStats returns broker statistics
func (b *Broker) GetStats() BrokerStats {
	b.mu.RLock()
	active := 0
	for _, subs := range b.subscribers {
		active += len(subs)
	}
	b.mu.RUnlock()

	delivered, dropped := b.delivered.Load(), b.dropped.Load()
	dropRate := float64(0)
	if attempts := delivered + dropped; attempts > 0 {
		dropRate = float64(dropped) / float64(attempts) * 100
	}

	return BrokerStats{
		ActiveSubscribers: active,
		TotalPublished:    b.published.Load(),
		TotalDelivered:    delivered,
		TotalDropped:      dropped,
		DropRate:          dropRate,
	}
}

// Close closes all subscriptions
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscribers {
		for sub := range subs {
			close(sub.C)
		}
	}
	b.subscribers = make(map[string]map[*Subscription]bool)

	log.Info().Msg("Signal feed broker closed")
}
