package store

import (
	"context"
	"errors"

	"github.com/leafsii/leafsii-vault/internal/vault"
	"go.uber.org/zap"
)

// EventPublisher fans committed vault events out over the cache pub/sub and
// drops the cached vault reads they invalidate.
type EventPublisher struct {
	cache  *Cache
	logger *zap.SugaredLogger
}

var _ vault.EventSink = (*EventPublisher)(nil)

func NewEventPublisher(cache *Cache, logger *zap.SugaredLogger) *EventPublisher {
	return &EventPublisher{cache: cache, logger: logger}
}

// EventChannel is the pub/sub channel carrying events of type t.
func EventChannel(t vault.EventType) string {
	return ChannelVaultEvents + ":" + string(t)
}

// EventChannels lists the channel of every vault event type.
func EventChannels() []string {
	types := vault.EventTypes()
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, EventChannel(t))
	}
	return out
}

func (p *EventPublisher) HandleEvents(ctx context.Context, events []vault.Event) error {
	var errs []error
	if err := p.cache.Delete(ctx, KeyVaultState); err != nil {
		errs = append(errs, err)
	}
	for _, e := range events {
		if err := p.cache.Publish(ctx, EventChannel(e.Type), e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.cache.Publish(ctx, ChannelVaultUpdates, map[string]int{"events": len(events)}); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	p.cache.metrics.RecordEventsPublished(ctx, "pubsub", len(events))
	p.logger.Debugw("Vault events published", "count", len(events))
	return nil
}
