// Package mqtt connects to the broker, feeds readings and incidents into
// the alerting engine and publishes actuator commands.
package mqtt

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	// connectCooldown rejects reconnect storms from callers.
	connectCooldown = 5 * time.Second
	disconnectQuiesceMs = 250
)

// MessageHandler processes one inbound message.
type MessageHandler func(topic string, payload []byte)

// Client is a paho connection that remembers its subscriptions and
// restores them after every reconnect.
type Client struct {
	settings conf.MQTTSettings
	log      logger.Logger

	mu          sync.Mutex
	conn        paho.Client
	subs        map[string]MessageHandler
	lastAttempt time.Time
}

// NewClient creates a disconnected client.
func NewClient(settings conf.MQTTSettings, log logger.Logger) (*Client, error) {
	if settings.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.QoS < 0 || settings.QoS > 2 {
		return nil, errors.Newf("invalid mqtt qos %d", settings.QoS).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &Client{
		settings: settings,
		log:      log.Module("mqtt"),
		subs:     make(map[string]MessageHandler),
	}, nil
}

func (c *Client) qos() byte {
	return byte(c.settings.QoS) //nolint:gosec // validated in NewClient
}

func (c *Client) options() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(c.settings.Broker).
		SetClientID(c.settings.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetConnectTimeout(c.connectTimeout())

	if c.settings.Username != "" {
		opts.SetUsername(c.settings.Username)
	}
	if c.settings.Password != "" {
		opts.SetPassword(c.settings.Password)
	}

	opts.SetOnConnectHandler(func(pc paho.Client) {
		c.log.Info("connected to broker", logger.String("broker", c.settings.Broker))
		c.resubscribe(pc)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warn("broker connection lost", logger.String("broker", c.settings.Broker), logger.Error(err))
	})
	return opts
}

func (c *Client) connectTimeout() time.Duration {
	if d := c.settings.ConnectTimeout.Std(); d > 0 {
		return d
	}
	return defaultConnectTimeout
}

func (c *Client) publishTimeout() time.Duration {
	if d := c.settings.PublishTimeout.Std(); d > 0 {
		return d
	}
	return defaultPublishTimeout
}

// Connect dials the broker. Attempts closer together than the cooldown are
// rejected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if !c.lastAttempt.IsZero() && time.Since(c.lastAttempt) < connectCooldown {
		c.mu.Unlock()
		return errors.Newf("connection attempt too recent, retry after %s", connectCooldown).
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Build()
	}
	c.lastAttempt = time.Now()
	if c.conn == nil {
		c.conn = paho.NewClient(c.options())
	}
	conn := c.conn
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	token := conn.Connect()
	if err := waitToken(ctx, token, c.connectTimeout()); err != nil {
		return errors.New(fmt.Errorf("connect to %s: %w", c.settings.Broker, err)).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("broker", c.settings.Broker).
			Build()
	}
	return nil
}

// Disconnect closes the connection. Subscriptions are kept for the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil && conn.IsConnected() {
		conn.Disconnect(disconnectQuiesceMs)
	}
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Publish sends payload to topic at the configured QoS.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return errors.Newf("not connected to broker").
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Context("topic", topic).
			Build()
	}

	token := conn.Publish(topic, c.qos(), false, payload)
	if err := waitToken(ctx, token, c.publishTimeout()); err != nil {
		return errors.New(fmt.Errorf("publish to %s: %w", topic, err)).
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Context("topic", topic).
			Build()
	}
	return nil
}

// PublishDeviceCommand publishes an actuator command to
// <command_topic_prefix>/<device_id>/command.
func (c *Client) PublishDeviceCommand(ctx context.Context, deviceID string, payload []byte) error {
	return c.Publish(ctx, CommandTopic(c.settings.CommandTopicPrefix, deviceID), payload)
}

// CommandTopic builds a device's command topic.
func CommandTopic(prefix, deviceID string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + deviceID + "/command"
}

// Subscribe registers handler for filter. The subscription is made now when
// connected and again after every reconnect.
func (c *Client) Subscribe(filter string, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[filter] = handler
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		return nil
	}
	return c.subscribe(conn, filter, handler)
}

func (c *Client) subscribe(conn paho.Client, filter string, handler MessageHandler) error {
	token := conn.Subscribe(filter, c.qos(), func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if err := waitToken(context.Background(), token, c.connectTimeout()); err != nil {
		return errors.New(fmt.Errorf("subscribe to %s: %w", filter, err)).
			Component("mqtt").
			Category(errors.CategoryMQTT).
			Context("topic", filter).
			Build()
	}
	c.log.Info("subscribed", logger.String("topic", filter))
	return nil
}

// resubscribe runs in paho's connect handler.
func (c *Client) resubscribe(conn paho.Client) {
	c.mu.Lock()
	subs := maps.Clone(c.subs)
	c.mu.Unlock()

	for filter, handler := range subs {
		if err := c.subscribe(conn, filter, handler); err != nil {
			c.log.Error("resubscribe failed", logger.String("topic", filter), logger.Error(err))
		}
	}
}

// waitToken waits for a paho token, the context or the timeout.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	}
}
