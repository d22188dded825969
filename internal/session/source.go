package session

import (
	"context"

	"mcfetch/internal/config"
	"mcfetch/internal/downloader"
)

// OpenSource builds the Source selected by cfg: the blob mirror when one is
// configured, otherwise pooled HTTP with an optional DoH resolver. The
// returned close function releases the source.
func OpenSource(ctx context.Context, cfg config.Config) (downloader.Source, func() error, error) {
	if cfg.Mirror != "" {
		bs, err := downloader.OpenBucketSource(ctx, cfg.Mirror)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil
	}

	opts := downloader.ClientOptions{
		Timeout:        cfg.Timeout,
		ConnectTimeout: cfg.ConnectTimeout,
	}
	if cfg.DoH {
		opts.Resolver = downloader.NewDoHResolver(cfg.DoHEndpoint)
	}
	src := downloader.NewHTTPSource(downloader.NewHTTPClient(opts))
	return src, func() error {
		src.Client.CloseIdleConnections()
		return nil
	}, nil
}
