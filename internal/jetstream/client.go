package jetstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

// Header names carried on every published message.
const (
	HeaderMsgID       = nats.MsgIdHdr
	HeaderRequestID   = "X-Request-ID"
	HeaderWorkspaceID = "X-Workspace-ID"
)

// Client wraps NATS JetStream functionality
type Client struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient connects to NATS and opens a JetStream context. The connection
// keeps reconnecting forever; readiness reports the gap.
func NewClient(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", apperrors.ErrNATS, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: jetstream context: %w", apperrors.ErrNATS, err)
	}

	return &Client{
		nc: nc,
		js: js,
	}, nil
}

// SetupStream creates the stream or updates it when the live config drifted.
func (c *Client) SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error {
	log := logger.FromContext(ctx).With(zap.String("stream", streamConfig.Name))

	info, err := c.js.StreamInfo(streamConfig.Name)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, err := c.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("%w: add stream %s: %w", apperrors.ErrNATS, streamConfig.Name, err)
		}
		log.Info("Created stream", zap.Strings("subjects", streamConfig.Subjects))
		return nil
	case err != nil:
		return fmt.Errorf("%w: stream info %s: %w", apperrors.ErrNATS, streamConfig.Name, err)
	}

	if utils.StreamConfigEqual(info.Config, *streamConfig) {
		log.Debug("Stream config unchanged")
		return nil
	}
	if _, err := c.js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("%w: update stream %s: %w", apperrors.ErrNATS, streamConfig.Name, err)
	}
	log.Info("Updated stream", zap.Strings("subjects", streamConfig.Subjects))
	return nil
}

// SetupConsumer creates the durable consumer on streamName. A consumer whose
// config drifted is recreated, since most consumer fields are immutable.
func (c *Client) SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error {
	durable := consumerConfig.Durable
	log := logger.FromContext(ctx).With(zap.String("stream", streamName), zap.String("consumer", durable))

	info, err := c.js.ConsumerInfo(streamName, durable)
	switch {
	case errors.Is(err, nats.ErrConsumerNotFound):
		if _, err := c.js.AddConsumer(streamName, consumerConfig); err != nil {
			return fmt.Errorf("%w: add consumer %s on %s: %w", apperrors.ErrNATS, durable, streamName, err)
		}
		log.Info("Created consumer",
			zap.String("deliver_subject", consumerConfig.DeliverSubject),
			zap.String("queue_group", consumerConfig.DeliverGroup),
			zap.Strings("filter_subjects", consumerConfig.FilterSubjects),
		)
		return nil
	case err != nil:
		return fmt.Errorf("%w: consumer info %s on %s: %w", apperrors.ErrNATS, durable, streamName, err)
	}

	if utils.ConsumerConfigEqual(info.Config, *consumerConfig) {
		log.Debug("Consumer config unchanged")
		return nil
	}

	log.Warn("Consumer config drifted, recreating")
	if err := c.js.DeleteConsumer(streamName, durable); err != nil {
		return fmt.Errorf("%w: delete consumer %s on %s: %w", apperrors.ErrNATS, durable, streamName, err)
	}
	if _, err := c.js.AddConsumer(streamName, consumerConfig); err != nil {
		return fmt.Errorf("%w: re-add consumer %s on %s: %w", apperrors.ErrNATS, durable, streamName, err)
	}
	log.Info("Recreated consumer", zap.Strings("filter_subjects", consumerConfig.FilterSubjects))
	return nil
}

// SubscribePush creates a push-based consumer subscription
func (c *Client) SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.js.QueueSubscribe(
		subject,
		group,
		handler,
		nats.Durable(consumer),
		nats.ManualAck(),
		nats.BindStream(stream),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %w", apperrors.ErrNATS, subject, err)
	}

	return sub, nil
}

// SubscribePull creates a pull-based consumer subscription
func (c *Client) SubscribePull(streamName, subject, consumer string) (*nats.Subscription, error) {
	sub, err := c.js.PullSubscribe(
		subject,
		consumer,
		nats.Bind(streamName, consumer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: pull subscribe %s/%s: %w", apperrors.ErrNATS, streamName, consumer, err)
	}

	return sub, nil
}

// Publish publishes raw bytes with optional headers. Used for DLQ forwarding
// where the payload must stay byte-identical.
func (c *Client) Publish(subject string, data []byte, headers map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if _, err := c.js.PublishMsg(msg); err != nil {
		return fmt.Errorf("%w: publish to %s: %w", apperrors.ErrNATS, subject, err)
	}
	return nil
}

// Headers builds the standard headers from the request scope of ctx.
func Headers(ctx context.Context, msgID string) map[string]string {
	headers := make(map[string]string, 3)
	if msgID != "" {
		headers[HeaderMsgID] = msgID
	}
	if requestID, err := tenant.FromRequestIDContext(ctx); err == nil {
		headers[HeaderRequestID] = requestID
	}
	if workspaceID, err := tenant.FromContext(ctx); err == nil {
		headers[HeaderWorkspaceID] = workspaceID
	}
	return headers
}

// PublishJSON marshals payload and publishes it with the standard headers.
func (c *Client) PublishJSON(ctx context.Context, subject, msgID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload for %s: %w", apperrors.ErrBadRequest, subject, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range Headers(ctx, msgID) {
		msg.Header.Set(k, v)
	}

	if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("%w: publish to %s: %w", apperrors.ErrNATS, subject, err)
	}
	logger.FromContext(ctx).Debug("Published message", zap.String("subject", subject), zap.String("msg_id", msgID))
	return nil
}

// IsConnected reports whether the NATS connection is up
func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// NatsConn returns the underlying *nats.Conn
func (c *Client) NatsConn() *nats.Conn {
	return c.nc
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}
