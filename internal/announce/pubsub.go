package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSub publishes announcements to a Google Cloud Pub/Sub topic.
type PubSub struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub sink.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// NewPubSub creates a Pub/Sub sink.
func NewPubSub(ctx context.Context, cfg PubSubConfig) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSub{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		topic:     cfg.Topic,
		logger:    cfg.Logger,
	}, nil
}

// Announce implements Announcer. It waits for the server to acknowledge.
func (p *PubSub) Announce(ctx context.Context, a Announcement) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"phase":      a.Phase,
			"tag":        a.Tag,
			"generation": strconv.FormatUint(a.Generation, 10),
		},
	})

	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}

	p.logger.Debug().Str("message_id", id).Str("phase", a.Phase).Msg("published announcement")
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSub) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
