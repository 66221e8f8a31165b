package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/dispatch-register/internal/domain/event"
)

const (
	DefaultSubject    = "register.reports.>"
	DefaultQueueGroup = "dispatch-register"
)

// ErrInvalidReport is returned for a message that cannot be decoded into a report
var ErrInvalidReport = errors.New("invalid report message")

// ReportSubmitter accepts decoded protocol reports
type ReportSubmitter interface {
	SubmitReport(ctx context.Context, evt *event.Event) error
}

// Config holds the NATS consumer settings
type Config struct {
	URL        string
	Subject    string
	QueueGroup string
	ClientName string
}

// Consumer subscribes to protocol reports published by the radio gateway
// and hands them to the register. The report type is taken from the message
// body, or from the subject below the configured prefix when the body has
// none ("register.reports.file.incoming" carries a file.incoming report).
type Consumer struct {
	config    Config
	submitter ReportSubmitter
	logger    *zap.Logger

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription
	ctx  context.Context
}

// NewConsumer creates a consumer; call Start to connect
func NewConsumer(config Config, submitter ReportSubmitter, logger *zap.Logger) *Consumer {
	if config.Subject == "" {
		config.Subject = DefaultSubject
	}
	if config.QueueGroup == "" {
		config.QueueGroup = DefaultQueueGroup
	}
	if config.ClientName == "" {
		config.ClientName = "dispatch-register"
	}
	return &Consumer{
		config:    config,
		submitter: submitter,
		logger:    logger,
		ctx:       context.Background(),
	}
}

// Name returns the worker name
func (c *Consumer) Name() string {
	return "NATSReportConsumer"
}

// Start connects to NATS and subscribes to the report subject
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("consumer already started")
	}

	conn, err := nats.Connect(c.config.URL,
		nats.Name(c.config.ClientName),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	c.ctx = ctx
	sub, err := conn.QueueSubscribe(c.config.Subject, c.config.QueueGroup, c.handleMessage)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", c.config.Subject, err)
	}

	c.conn = conn
	c.sub = sub
	c.logger.Info("Report consumer subscribed",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("subject", c.config.Subject),
		zap.String("queue_group", c.config.QueueGroup))
	return nil
}

// Stop drains the subscription and closes the connection
func (c *Consumer) Stop() error {
	c.mu.Lock()
	conn := c.conn
	c.conn, c.sub = nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	// Drain lets in-flight messages finish before the connection closes
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

func (c *Consumer) handleMessage(msg *nats.Msg) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	if err := c.process(ctx, msg.Subject, msg.Data); err != nil {
		c.logger.Error("Failed to process report message",
			zap.String("subject", msg.Subject),
			zap.Int("data_len", len(msg.Data)),
			zap.Error(err))
	}
}

// process decodes one message and submits it
func (c *Consumer) process(ctx context.Context, subject string, data []byte) error {
	evt, err := c.decode(subject, data)
	if err != nil {
		return err
	}

	c.logger.Debug("Report received",
		zap.String("event_id", evt.ID),
		zap.String("type", evt.Type.String()))
	return c.submitter.SubmitReport(ctx, evt)
}

func (c *Consumer) decode(subject string, data []byte) (*event.Event, error) {
	var evt event.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	if evt.Type == "" {
		evt.Type = event.Type(strings.TrimPrefix(subject, c.subjectPrefix()))
	}
	if !evt.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidReport, evt.Type)
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Payload == nil {
		evt.Payload = make(map[string]interface{})
	}
	return &evt, nil
}

// subjectPrefix is the configured subject without its trailing wildcard
func (c *Consumer) subjectPrefix() string {
	prefix := strings.TrimSuffix(c.config.Subject, ">")
	prefix = strings.TrimSuffix(prefix, "*")
	return prefix
}
