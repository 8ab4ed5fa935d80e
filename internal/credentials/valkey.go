package credentials

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	"github.com/valkey-io/valkey-go"
)

// ValkeyOptions configures the valkey backend.
type ValkeyOptions struct {
	// Addr is the server address, e.g. "valkey.namespace.svc:6379".
	Addr       string
	Password   string
	DB         int
	TLSEnabled bool
	KeyPrefix  string
}

// ValkeyBackend stores records as string values in valkey.
type ValkeyBackend struct {
	client valkey.Client
	prefix string
}

// NewValkeyBackend connects to valkey.
func NewValkeyBackend(opts ValkeyOptions) (*ValkeyBackend, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	clientOpts := valkey.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
		// Records are read once per request; client-side caching buys nothing.
		DisableCache: true,
	}
	if opts.TLSEnabled {
		clientOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", opts.Addr, err)
	}
	return &ValkeyBackend{client: client, prefix: opts.KeyPrefix}, nil
}

func (b *ValkeyBackend) key(userID int64) string {
	return b.prefix + "user:" + strconv.FormatInt(userID, 10)
}

// Get reads the user's record.
func (b *ValkeyBackend) Get(ctx context.Context, userID int64) ([]byte, error) {
	data, err := b.client.Do(ctx, b.client.B().Get().Key(b.key(userID)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put writes the user's record.
func (b *ValkeyBackend) Put(ctx context.Context, userID int64, data []byte) error {
	cmd := b.client.B().Set().Key(b.key(userID)).Value(valkey.BinaryString(data)).Build()
	return b.client.Do(ctx, cmd).Error()
}

// Delete removes the user's record.
func (b *ValkeyBackend) Delete(ctx context.Context, userID int64) error {
	return b.client.Do(ctx, b.client.B().Del().Key(b.key(userID)).Build()).Error()
}

// Close closes the client.
func (b *ValkeyBackend) Close() error {
	b.client.Close()
	return nil
}
