package provider

import (
	"context"
	"fmt"

	"dupsweep/internal/config"
	"dupsweep/internal/sweep"
)

// NewProviderFromConfig creates a Provider implementation based on the source type.
// identity is the account a memory source acts as.
func NewProviderFromConfig(ctx context.Context, cfg config.SourceConfig, identity string) (sweep.Provider, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryProvider(cfg.Name, identity, cfg.PageSize), nil
	case "local":
		if cfg.LocalRoot == "" {
			return nil, fmt.Errorf("local source requires local_root to be set")
		}
		p, err := NewLocalProvider(cfg.Name, cfg.LocalRoot, cfg.LocalIgnore, cfg.PageSize)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 source requires s3_bucket to be set")
		}
		p, err := NewS3ProviderFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
