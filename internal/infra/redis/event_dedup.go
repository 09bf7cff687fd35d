package redis

import (
	"context"
	"fmt"
	"time"
)

// EventDedup is the fast-path idempotency check for webhook deliveries. The
// durable check is the unique index on the event log; this only spares a
// database round trip for PayPal's immediate redeliveries. A redis failure is
// treated as "first sighting" so the durable path stays authoritative.
type EventDedup struct {
	cli RedisClient
	ttl time.Duration
}

func NewEventDedup(cli RedisClient, ttl time.Duration) *EventDedup {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &EventDedup{cli: cli, ttl: ttl}
}

// FirstSighting records the event id and reports whether it was seen for the
// first time.
func (d *EventDedup) FirstSighting(ctx context.Context, eventID string) bool {
	ok, err := d.cli.SetNX(ctx, fmt.Sprintf("webhook:event:%s", eventID), 1, d.ttl)
	if err != nil {
		return true
	}
	return ok
}
