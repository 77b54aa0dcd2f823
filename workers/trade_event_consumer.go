// workers/trade_event_consumer.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"journal-gamification/services"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	EventTradeCompleted = "trade.completed"
	EventTradeDeleted   = "trade.deleted"

	consumerTag    = "journal-gamification"
	reconnectDelay = 5 * time.Second
	prefetchCount  = 16
	handleTimeout  = 30 * time.Second
)

// EventProcessor is the part of the engine the consumer drives.
type EventProcessor interface {
	ProcessTradeCompletion(ctx context.Context, ev services.TradeCompletion) (*services.CompletionResult, error)
	ProcessTradeDeletion(ctx context.Context, ev services.TradeDeletion) (*services.DeletionResult, error)
}

// TradeEvent is the journal's wire payload. Type may instead travel in the AMQP type property.
type TradeEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	PeriodKey string `json:"period_key"`

	Trade *struct {
		ID     string          `json:"id"`
		Profit decimal.Decimal `json:"profit"`
		Result string          `json:"result"`
		Date   string          `json:"date"` // YYYY-MM-DD or RFC3339
	} `json:"trade,omitempty"`

	DeletedCount     int64           `json:"deleted_count"`
	DeletedProfitSum decimal.Decimal `json:"deleted_profit_sum"`
	TradeIDs         []string        `json:"trade_ids,omitempty"`
}

// Outcome tells the consumer how to settle a delivery.
type Outcome int

const (
	Ack Outcome = iota
	Reject
	Retry
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	default:
		return "retry"
	}
}

var errMalformed = errors.New("malformed trade event")

// ParseTradeDate accepts a calendar date or a full RFC3339 timestamp. Empty yields the zero time.
// The timestamp's offset is kept; streaks count the trade on its local date.
func ParseTradeDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", errMalformed, s)
	}
	return t, nil
}

type TradeEventConsumer struct {
	url       string
	queue     string
	processor EventProcessor
	logger    *zap.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewTradeEventConsumer(url, queue string, processor EventProcessor, logger *zap.Logger) *TradeEventConsumer {
	return &TradeEventConsumer{
		url:       url,
		queue:     queue,
		processor: processor,
		logger:    logger.Named("trade_event_consumer"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled or Stop is called, reconnecting on failure.
func (c *TradeEventConsumer) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(c.done)
		for {
			err := c.consume(ctx)
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			default:
			}
			c.logger.Error("consumer loop ended, reconnecting", zap.Duration("delay", reconnectDelay), zap.Error(err))
			select {
			case <-time.After(reconnectDelay):
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			}
		}
	}()
	c.logger.Info("trade event consumer started", zap.String("queue", c.queue))
}

// Stop ends the loop and waits for the in-flight delivery to settle.
func (c *TradeEventConsumer) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.started.Load() {
		<-c.done
	}
}

func (c *TradeEventConsumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", c.queue, err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.settle(d, c.Handle(ctx, d.Type, d.Body))
		}
	}
}

func (c *TradeEventConsumer) settle(d amqp.Delivery, outcome Outcome) {
	var err error
	switch outcome {
	case Ack:
		err = d.Ack(false)
	case Reject:
		err = d.Nack(false, false)
	case Retry:
		err = d.Nack(false, true)
	}
	if err != nil {
		c.logger.Error("failed to settle delivery",
			zap.Uint64("delivery_tag", d.DeliveryTag), zap.Stringer("outcome", outcome), zap.Error(err))
	}
}

// Handle decodes one message and runs it through the engine.
// Malformed or invalid events are rejected; datastore failures are retried.
func (c *TradeEventConsumer) Handle(ctx context.Context, msgType string, body []byte) Outcome {
	var ev TradeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Warn("undecodable trade event", zap.Error(err))
		return Reject
	}
	if ev.Type == "" {
		ev.Type = msgType
	}
	log := c.logger.With(zap.String("type", ev.Type), zap.String("user_id", ev.UserID), zap.String("period", ev.PeriodKey))

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	err := c.dispatch(ctx, ev, log)
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, errMalformed), services.IsValidation(err):
		log.Warn("trade event rejected", zap.Error(err))
		return Reject
	default:
		log.Error("trade event failed, requeueing", zap.Error(err))
		return Retry
	}
}

func (c *TradeEventConsumer) dispatch(ctx context.Context, ev TradeEvent, log *zap.Logger) error {
	switch ev.Type {
	case EventTradeCompleted:
		if ev.Trade == nil {
			return fmt.Errorf("%w: trade missing", errMalformed)
		}
		date, err := ParseTradeDate(ev.Trade.Date)
		if err != nil {
			return err
		}
		res, err := c.processor.ProcessTradeCompletion(ctx, services.TradeCompletion{
			UserID:    ev.UserID,
			PeriodKey: ev.PeriodKey,
			Trade: services.Trade{
				ID:     ev.Trade.ID,
				Profit: ev.Trade.Profit,
				Result: ev.Trade.Result,
				Date:   date,
			},
		})
		if err != nil {
			return err
		}
		log.Debug("trade completion applied",
			zap.Int("level", res.Level), zap.Int("badges", len(res.NewBadges)), zap.Bool("duplicate", res.Duplicate))
		return nil
	case EventTradeDeleted:
		res, err := c.processor.ProcessTradeDeletion(ctx, services.TradeDeletion{
			UserID:           ev.UserID,
			PeriodKey:        ev.PeriodKey,
			DeletedCount:     ev.DeletedCount,
			DeletedProfitSum: ev.DeletedProfitSum,
			TradeIDs:         ev.TradeIDs,
		})
		if err != nil {
			return err
		}
		log.Debug("trade deletion applied", zap.Int("level", res.NewLevel), zap.Int64("xp_clawed_back", res.XPClawedBack))
		return nil
	default:
		return fmt.Errorf("%w: unknown event type %q", errMalformed, ev.Type)
	}
}
