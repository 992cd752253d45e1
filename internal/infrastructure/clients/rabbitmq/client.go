package rabbitmq

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
	"github.com/zatekoja/medlogistics/backend/pkg/config"
)

// Client owns one AMQP connection and a publishing channel bound to a durable
// topic exchange
type Client struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewClient dials the broker and declares the exchange
func NewClient(cfg *config.RabbitMQConfig) (*Client, error) {
	c := &Client{url: cfg.URL, exchange: cfg.Exchange}
	if _, err := c.Channel(); err != nil {
		return nil, err
	}
	return c, nil
}

// Exchange returns the exchange events are published to
func (c *Client) Exchange() string {
	return c.exchange
}

// Channel returns the publishing channel, reconnecting if the broker closed it
func (c *Client) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	if c.conn == nil || c.conn.IsClosed() {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
		}
		c.conn = conn
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	if err := ch.ExchangeDeclare(
		c.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: exchange declare failed: %w", err)
	}

	c.channel = ch
	observability.GetLogger().Info().Str("exchange", c.exchange).Msg("rabbitmq channel ready")
	return ch, nil
}

// Close closes the channel and the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
