package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kestrelsec/kestrel/pkg/observability"
	"github.com/kestrelsec/kestrel/pkg/provider/local"
	"github.com/kestrelsec/kestrel/pkg/provider/oidc"
)

// Options carries the collaborators each variant may need. Only the fields
// relevant to the selected type are consulted.
type Options struct {
	// Redis backs the local variant's session store.
	Redis *redis.Client
	// SessionTTL is the local variant's session lifetime.
	SessionTTL time.Duration
	// OIDC configures the external-issuer variant.
	OIDC oidc.Config
	// Logger is shared by all variants.
	Logger *observability.Logger
}

// New resolves the configured type to a concrete provider. Called once at
// process start; the result is immutable for the process lifetime.
func New(ctx context.Context, typ Type, opts Options) (AuthProvider, error) {
	switch typ {
	case TypeLocal:
		if opts.Redis == nil {
			return nil, fmt.Errorf("provider: local variant requires a redis client")
		}
		return local.New(opts.Redis, opts.SessionTTL, opts.Logger), nil
	case TypeOIDC:
		return oidc.New(ctx, opts.OIDC, opts.Logger)
	}
	return nil, fmt.Errorf("provider: unknown auth provider type %q", typ)
}
