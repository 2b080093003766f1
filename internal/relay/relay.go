// Package relay forwards outbox events written by any instance to the
// realtime clients connected to this one.
package relay

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"frontdesk/internal/logger"
	"frontdesk/internal/store"
	"frontdesk/internal/store/postgres"

	"go.uber.org/zap"
)

const (
	Consumer = "relay"
	zeroUUID = "00000000-0000-0000-0000-000000000000"
)

// SignedOut is the auth event pushed for every identity whose sessions were revoked.
const SignedOut = "SIGNED_OUT"

type Publisher interface {
	PublishAuthEvent(identityID, event string)
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

type Relay struct {
	outbox    store.Outbox
	publisher Publisher
	interval  time.Duration
	batch     int
	log       *zap.Logger

	running int32
	offset  store.OutboxOffset
	loaded  bool
}

type revokedPayload struct {
	CPF         string   `json:"cpf"`
	IdentityIDs []string `json:"identity_ids"`
}

func New(outbox store.Outbox, publisher Publisher, cfg Config) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  cfg.PollInterval,
		batch:     cfg.BatchSize,
		log:       logger.Named("relay"),
	}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay started", zap.Duration("interval", r.interval), zap.Int("batch", r.batch))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Poll(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("relay poll failed", logger.Err(err))
			}
		}
	}
}

// Poll forwards one batch and returns how many events it handled. Overlapping
// calls return immediately.
func (r *Relay) Poll(ctx context.Context) (int, error) {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return 0, nil
	}
	defer atomic.StoreInt32(&r.running, 0)

	if !r.loaded {
		offset, err := r.outbox.GetOffset(ctx, Consumer)
		if err != nil {
			return 0, err
		}
		if offset.LastEventTime.IsZero() {
			offset.LastEventTime = time.Unix(0, 0).UTC()
		}
		if offset.LastEventID == "" {
			offset.LastEventID = zeroUUID
		}
		r.offset = offset
		r.loaded = true
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	events, err := r.outbox.ListOutboxEvents(queryCtx, r.offset, r.batch)
	cancel()
	if err != nil {
		return 0, err
	}

	for _, event := range events {
		r.offset.LastEventTime = event.CreatedAt
		r.offset.LastEventID = event.EventID
		r.dispatch(event)
	}
	if len(events) == 0 {
		return 0, nil
	}

	updateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.outbox.UpdateOffset(updateCtx, Consumer, r.offset); err != nil {
		return len(events), err
	}
	return len(events), nil
}

func (r *Relay) dispatch(event store.OutboxEvent) {
	switch event.Type {
	case postgres.EventSessionRevoked:
		var payload revokedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			r.log.Warn("bad outbox payload", zap.String("event_id", event.EventID), logger.Err(err))
			return
		}
		for _, id := range payload.IdentityIDs {
			r.publisher.PublishAuthEvent(id, SignedOut)
		}
	default:
		r.log.Debug("skip outbox event", zap.String("type", event.Type))
	}
}
