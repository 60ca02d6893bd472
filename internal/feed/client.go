package feed

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultReadDeadline = 30 * time.Second
	reconnectBackoffMin = 250 * time.Millisecond
	reconnectBackoffMax = 15 * time.Second
)

// ClientConfig controls the quote feed connection.
type ClientConfig struct {
	URL          string        `json:"url"`
	DialTimeout  time.Duration `json:"dialTimeout"`
	ReadDeadline time.Duration `json:"readDeadline"`
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ReadDeadline <= 0 {
		c.ReadDeadline = defaultReadDeadline
	}
	return c
}

// QuoteHandler consumes decoded quotes. It must not block.
type QuoteHandler func(quote schema.Quote)

// Client maintains a websocket subscription to the quote stream and
// reconnects with exponential backoff on failure.
type Client struct {
	cfg      ClientConfig
	registry *schema.Registry
	handler  QuoteHandler
	alerts   schema.AlertSink
}

// NewClient creates a feed client.
func NewClient(cfg ClientConfig, registry *schema.Registry, handler QuoteHandler) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed: url is empty")
	}
	if registry == nil {
		return nil, errors.New("feed: nil registry")
	}
	if handler == nil {
		return nil, errors.New("feed: nil handler")
	}
	return &Client{cfg: cfg.withDefaults(), registry: registry, handler: handler}, nil
}

// SetAlertSink attaches the connectivity alert sink.
func (c *Client) SetAlertSink(sink schema.AlertSink) { c.alerts = sink }

// Run connects and pumps quotes until ctx is done, reconnecting on
// every failure.
func (c *Client) Run(ctx context.Context) {
	backoff := reconnectBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		logs.Warnf("feed connection lost: %+v", err)
		c.raiseConnectivity(err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectBackoffMax {
			backoff = reconnectBackoffMax
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.cfg.URL)
	}
	defer conn.Close()
	logs.Infof("feed connected to %s", c.cfg.URL)

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-closed:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadDeadline)); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read quote")
		}

		var wq WireQuote
		if err := sonic.Unmarshal(message, &wq); err != nil {
			logs.Warnf("feed bad frame: %+v", err)
			continue
		}
		quote, err := Decode(c.registry, wq)
		if err != nil {
			logs.Warnf("feed decode: %+v", err)
			continue
		}
		c.handler(quote)
	}
}

func (c *Client) raiseConnectivity(err error) {
	if c.alerts == nil || err == nil {
		return
	}
	c.alerts.OnAlert(schema.Alert{
		Type: schema.AlertTypeConnectivity,
		Text: "feed disconnected: " + err.Error(),
	})
}
