// Package storage selects the snapshot backend and lays out archived listing pages.
package storage

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/config"
	"github.com/JakeFAU/campaign-crawler/internal/storage/gcs"
	"github.com/JakeFAU/campaign-crawler/internal/storage/local"
)

const htmlContentType = "text/html; charset=utf-8"

// SnapshotPath returns prefix/source/runID/n.html.
func SnapshotPath(prefix string, source campaign.Source, runID string, n int) string {
	return path.Join(strings.Trim(prefix, "/"), string(source), runID, strconv.Itoa(n)+".html")
}

// Archive writes listing pages to a SnapshotStore. A nil Archive discards.
type Archive struct {
	store  campaign.SnapshotStore
	prefix string
}

// NewArchive wraps store. It returns nil when store is nil.
func NewArchive(store campaign.SnapshotStore, prefix string) *Archive {
	if store == nil {
		return nil
	}
	return &Archive{store: store, prefix: prefix}
}

// Put archives one listing page and returns its URI.
func (a *Archive) Put(ctx context.Context, source campaign.Source, runID string, n int, html string) (string, error) {
	if a == nil {
		return "", nil
	}
	uri, err := a.store.PutObject(ctx, SnapshotPath(a.prefix, source, runID, n), htmlContentType, strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("archive snapshot: %w", err)
	}
	return uri, nil
}

// Open builds the configured backend. The returned close func is never nil.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Archive, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "none":
		logger.Info("snapshot archive disabled")
		return nil, noop, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, noop, fmt.Errorf("open local snapshot store: %w", err)
		}
		logger.Info("snapshot archive on local disk", zap.String("base_dir", cfg.Local.BaseDir))
		return NewArchive(store, cfg.Prefix), noop, nil
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create storage client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("open gcs snapshot store: %w", err)
		}
		if err := store.CheckBucket(ctx); err != nil {
			_ = store.Close()
			return nil, noop, err
		}
		logger.Info("snapshot archive on gcs", zap.String("bucket", cfg.Bucket))
		return NewArchive(store, cfg.Prefix), store.Close, nil
	default:
		return nil, noop, fmt.Errorf("storage backend %q is not supported", cfg.Backend)
	}
}
