package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const redialDelay = 5 * time.Second

var errPublisherClosed = errors.New("amqp publisher closed")

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

type amqpConnection interface {
	Channel() (amqpChannel, error)
	IsClosed() bool
	Close() error
}

type dialFunc func(url string) (amqpConnection, error)

type brokerConn struct{ *amqp.Connection }

func (c brokerConn) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialBroker(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return brokerConn{conn}, nil
}

// AMQPPublisher sends events to a durable topic exchange, routed by event type.
// A channel or connection closed by the broker is re-opened on the next
// publish, at most once per redial delay.
type AMQPPublisher struct {
	mu         sync.Mutex
	url        string
	exchange   string
	dial       dialFunc
	conn       amqpConnection
	channel    amqpChannel
	lastDial   time.Time
	closed     bool
	now        func() time.Time
	log        *zap.Logger
	retryDelay time.Duration
}

func DialAMQP(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	return newAMQPPublisher(url, exchange, dialBroker, log)
}

func newAMQPPublisher(url, exchange string, dial dialFunc, log *zap.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		url:        url,
		exchange:   exchange,
		dial:       dial,
		now:        time.Now,
		log:        log.Named("events.amqp"),
		retryDelay: redialDelay,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.ensureChannel(); err != nil {
		return nil, err
	}
	return p, nil
}

// ensureChannel returns an open channel, re-dialing the connection when the
// broker dropped it. p.mu must be held.
func (p *AMQPPublisher) ensureChannel() (amqpChannel, error) {
	if p.closed {
		return nil, errPublisherClosed
	}
	if p.channel != nil && !p.channel.IsClosed() {
		return p.channel, nil
	}
	if !p.lastDial.IsZero() && p.now().Sub(p.lastDial) < p.retryDelay {
		return nil, errors.New("amqp channel closed, waiting to redial")
	}
	p.lastDial = p.now()

	if p.conn == nil || p.conn.IsClosed() {
		conn, err := p.dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial amqp: %w", err)
		}
		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", p.exchange, err)
	}

	p.channel = ch
	p.lastDial = time.Time{}
	go p.watch(ch, ch.NotifyClose(make(chan *amqp.Error, 1)))
	return ch, nil
}

// watch forgets ch once the broker closes it.
func (p *AMQPPublisher) watch(ch amqpChannel, closes chan *amqp.Error) {
	reason, ok := <-closes
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != ch {
		return
	}
	p.channel = nil
	if ok && reason != nil {
		p.log.Warn("amqp channel closed by broker",
			zap.Int("code", reason.Code),
			zap.String("reason", reason.Reason),
		)
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := amqp.Table{}
	for k, v := range evt.Headers {
		headers[k] = v
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.ensureChannel()
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	err = ch.PublishWithContext(ctx,
		p.exchange,
		evt.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			MessageId:     evt.ID,
			CorrelationId: evt.Headers[HeaderCorrelationID],
			Type:          evt.Type,
			Timestamp:     time.Now(),
			Headers:       headers,
			Body:          body,
		},
	)
	if err != nil {
		if ch.IsClosed() {
			p.channel = nil
		}
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	p.log.Debug("ledger event published", zap.String("event_type", evt.Type), zap.String("event_id", evt.ID))
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}
