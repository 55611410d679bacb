package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

// scanBatch is the COUNT hint for prefix deletes.
const scanBatch = 500

// Valkey is a cache shared by every node through a valkey (or redis) server.
type Valkey struct {
	client    valkey.Client
	namespace string
}

// NewValkey connects to addr and verifies the connection. Every key is
// stored below namespace so several deployments can share one server.
func NewValkey(ctx context.Context, addr, password, namespace string) (*Valkey, error) {
	opts := valkey.ClientOption{InitAddress: []string{addr}}
	if password != "" {
		opts.Password = password
	}
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("creating valkey client: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging valkey: %w", err)
	}
	return &Valkey{client: client, namespace: namespace}, nil
}

// Client exposes the underlying client for components sharing the
// connection.
func (v *Valkey) Client() valkey.Client {
	return v.client
}

// Close closes the connection.
func (v *Valkey) Close() {
	v.client.Close()
}

func (v *Valkey) key(k string) string {
	return v.namespace + k
}

func (v *Valkey) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := v.client.Do(ctx, v.client.B().Get().Key(v.key(key)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("getting %s: %w", key, err)
	}
	return s, true, nil
}

func (v *Valkey) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var cmd valkey.Completed
	if ttl > 0 {
		cmd = v.client.B().Set().Key(v.key(key)).Value(value).Ex(ttl).Build()
	} else {
		cmd = v.client.B().Set().Key(v.key(key)).Value(value).Build()
	}
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (v *Valkey) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = v.key(k)
	}
	if err := v.client.Do(ctx, v.client.B().Del().Key(full...).Build()).Error(); err != nil {
		return fmt.Errorf("deleting keys: %w", err)
	}
	return nil
}

// DeletePrefix walks the keyspace with SCAN and deletes matching keys batch
// by batch.
func (v *Valkey) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := globEscape(v.key(prefix)) + "*"
	var cursor uint64
	for {
		entry, err := v.client.Do(ctx,
			v.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatch).Build(),
		).AsScanEntry()
		if err != nil {
			return fmt.Errorf("scanning %s: %w", prefix, err)
		}
		if len(entry.Elements) > 0 {
			if err := v.client.Do(ctx, v.client.B().Del().Key(entry.Elements...).Build()).Error(); err != nil {
				return fmt.Errorf("deleting %s: %w", prefix, err)
			}
		}
		if entry.Cursor == 0 {
			return nil
		}
		cursor = entry.Cursor
	}
}

// globEscape quotes the glob metacharacters SCAN MATCH understands.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
