// Package events carries domain events from the order workflow to the
// notification side. Publishing never blocks or fails the publisher.
package events

import (
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TopicOrderPlaced    = "order.placed"
	TopicOrderCancelled = "order.cancelled"
	TopicStockLow       = "stock.low"
	TopicReviewCreated  = "review.created"
)

type OrderPlaced struct {
	OrderID       uint            `json:"order_id"`
	Number        string          `json:"number"`
	UserID        *uint           `json:"user_id,omitempty"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"item_count"`
	PlacedAt      time.Time       `json:"placed_at"`
}

type OrderCancelled struct {
	OrderID uint   `json:"order_id"`
	Number  string `json:"number"`
	ByAdmin bool   `json:"by_admin"`
}

type StockLow struct {
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	Stock       int    `json:"stock"`
	Threshold   int    `json:"threshold"`
}

type ReviewCreated struct {
	ReviewID    uint   `json:"review_id"`
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	UserID      uint   `json:"user_id"`
	Rating      int    `json:"rating"`
}

// Publisher is what the workflow depends on.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Bus is an in-process asynchronous event bus.
type Bus struct {
	bus EventBus.Bus
	log *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{bus: EventBus.New(), log: log}
}

func (b *Bus) Publish(topic string, payload interface{}) {
	if !b.bus.HasCallback(topic) {
		b.log.Debug("event dropped, no subscribers", zap.String("topic", topic))
		return
	}
	b.bus.Publish(topic, payload)
}

// Subscribe registers fn to run on its own goroutine for every event on topic.
// fn must take the topic's payload type as its only argument.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.SubscribeAsync(topic, fn, false)
}

// Wait blocks until all in-flight async handlers return.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(string, interface{}) {}
