package redis

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/heygaia/chat-sync/internal/domain"
)

const eventChannel = "gaia:chat:events"

// Publisher relays local store change events onto a Redis pub/sub channel so
// other processes on the same machine (the desktop shell, a tray applet) can
// react to cache changes without polling the API.
type Publisher struct {
	client      *Client
	log         zerolog.Logger
	unsubscribe func()
}

// NewPublisher subscribes to the store's change feed and starts relaying.
// Call Stop to detach.
func NewPublisher(client *Client, st domain.Store, log zerolog.Logger) *Publisher {
	p := &Publisher{
		client: client,
		log:    log.With().Str("component", "redis_publisher").Logger(),
	}
	p.unsubscribe = st.Subscribe(p.publish)
	return p
}

func (p *Publisher) publish(ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to marshal change event")
		return
	}
	// Store listeners run on the write path, so a slow or down Redis must not
	// fail the write. Log and move on.
	if err := p.client.rdb.Publish(context.Background(), eventChannel, payload).Err(); err != nil {
		p.log.Warn().Err(err).Msg("failed to publish change event")
	}
}

// Stop detaches the publisher from the store's change feed.
func (p *Publisher) Stop() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}
