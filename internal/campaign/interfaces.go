package campaign

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves the raw HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// RenderSession is a browser acquired for a single crawl invocation.
type RenderSession interface {
	Render(ctx context.Context, url string) (string, error)
	Close()
}

// BrowserLauncher opens render sessions.
type BrowserLauncher interface {
	Open(ctx context.Context) (RenderSession, error)
}

// Store persists campaigns with an idempotent upsert on (source_site, campaign_id).
type Store interface {
	Upsert(ctx context.Context, row StoredCampaign) error
}

// SnapshotStore archives raw listing HTML and returns a URI.
type SnapshotStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes alert payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// DeadlineCache remembers deadlines resolved from detail pages.
type DeadlineCache interface {
	Get(ctx context.Context, detailURL string) (DeadlineResolution, bool, error)
	Set(ctx context.Context, detailURL string, res DeadlineResolution) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
