// Package nats connects to NATS JetStream and opens the key-value bucket
// used as the shared role cache tier.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/StudioGate/internal/config"
)

// KV is an open role bucket and the connection that owns it.
type KV struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// Connect establishes a connection to NATS and ensures the bucket exists.
// Entries expire at the bucket level after ttl.
func Connect(ctx context.Context, cfg config.NATS, ttl time.Duration) (*KV, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("studiogate"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.RoleBucket,
		Description: "studiogate profile roles",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream kv %s: %w", cfg.RoleBucket, err)
	}

	slog.Info("nats connected", "url", cfg.URL, "bucket", cfg.RoleBucket)
	return &KV{nc: nc, kv: kv}, nil
}

// Bucket returns the key-value handle.
func (k *KV) Bucket() jetstream.KeyValue {
	return k.kv
}

// Close drains and closes the NATS connection.
func (k *KV) Close() error {
	if err := k.nc.Drain(); err != nil {
		k.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
