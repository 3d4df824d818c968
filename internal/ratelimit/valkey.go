package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
)

// DefaultValkeyPrefix namespaces limiter keys in a shared Valkey database.
const DefaultValkeyPrefix = "inboxbuckets:ratelimit:"

// ValkeyConfig configures the Valkey connection.
type ValkeyConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewValkeyClient connects to the Valkey server described by cfg.
func NewValkeyClient(cfg ValkeyConfig) (valkey.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return client, nil
}

// Valkey counts windows with INCR and lets keys expire with the window.
type Valkey struct {
	client valkey.Client
	prefix string
	now    func() time.Time
}

// NewValkey creates a Valkey limiter. An empty prefix uses DefaultValkeyPrefix.
func NewValkey(client valkey.Client, prefix string) *Valkey {
	if prefix == "" {
		prefix = DefaultValkeyPrefix
	}
	return &Valkey{client: client, prefix: prefix, now: time.Now}
}

// Consume implements Limiter.
func (v *Valkey) Consume(ctx context.Context, key string, limit int, size time.Duration) (Result, error) {
	start := WindowStart(v.now(), size)
	reset := start.Add(size)
	windowKey := v.prefix + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)

	count, err := v.client.Do(ctx, v.client.B().Incr().Key(windowKey).Build()).AsInt64()
	if err != nil {
		return Result{}, fmt.Errorf("valkey incr: %w", err)
	}
	if count == 1 {
		// Keep the key one extra window so late requests in a skewed clock still hit it.
		ttl := (2 * size).Milliseconds()
		if err := v.client.Do(ctx, v.client.B().Pexpire().Key(windowKey).Milliseconds(ttl).Build()).Error(); err != nil {
			return Result{}, fmt.Errorf("valkey pexpire: %w", err)
		}
	}

	if int(count) > limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: reset}, nil
	}
	return Result{Allowed: true, Remaining: limit - int(count), ResetAt: reset}, nil
}

// Close releases the client connection.
func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
