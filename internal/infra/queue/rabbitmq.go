package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"seoul-housing-ingest/internal/domain"
	"seoul-housing-ingest/internal/infra/metrics"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitDeliverer публикует запросы загрузки в exchange RabbitMQ, по сообщению на запрос.
type RabbitDeliverer struct {
	conn       *amqp.Connection
	ch         publisher
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

var _ domain.Deliverer = (*RabbitDeliverer)(nil)

// DialRabbit подключается к amqpURL и объявляет durable topic exchange.
func DialRabbit(amqpURL, exchange, routingKey string, logger zerolog.Logger) (*RabbitDeliverer, error) {
	if strings.TrimSpace(amqpURL) == "" {
		return nil, errors.New("amqp url is empty")
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, errors.New("exchange name is empty")
	}
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	d := newRabbitDeliverer(ch, exchange, routingKey, logger)
	d.conn = conn
	return d, nil
}

func newRabbitDeliverer(ch publisher, exchange, routingKey string, logger zerolog.Logger) *RabbitDeliverer {
	return &RabbitDeliverer{ch: ch, exchange: exchange, routingKey: routingKey, logger: logger}
}

// Deliver публикует req как persistent JSON сообщение. Брокер не сообщает
// результат по элементам, поэтому заполняется только Received.
func (d *RabbitDeliverer) Deliver(ctx context.Context, req domain.IngestRequest) (domain.IngestResult, error) {
	if strings.TrimSpace(req.Category) == "" {
		return domain.IngestResult{}, fmt.Errorf("%w: ingest category is blank", domain.ErrInvalidArgument)
	}
	if req.Items == nil {
		req.Items = []domain.IngestItem{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("marshal request: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         "announcement.ingest",
		Headers:      amqp.Table{"category": req.Category},
		Body:         payload,
	}
	start := time.Now()
	err = d.ch.PublishWithContext(ctx, d.exchange, d.routingKey, false, false, msg)
	metrics.ObserveNetworkRequest("rabbitmq", "publish", d.routingKey, start, err)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("publish %s: %w", req.Category, err)
	}
	d.logger.Info().
		Str("category", req.Category).
		Str("message_id", msg.MessageId).
		Int("items", len(req.Items)).
		Msg("rabbitmq: ingest request published")
	return domain.IngestResult{Received: len(req.Items)}, nil
}

func (d *RabbitDeliverer) Close() error {
	var errs []error
	if d.ch != nil {
		errs = append(errs, d.ch.Close())
	}
	if d.conn != nil {
		errs = append(errs, d.conn.Close())
	}
	return errors.Join(errs...)
}
