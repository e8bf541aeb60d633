// Package deadline resolves campaign application deadlines through an ordered
// chain of strategies. The first strategy that produces a deadline wins and
// the source-specific fallback always terminates the chain.
package deadline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/metrics"
)

// Input is what a strategy sees for one candidate.
type Input struct {
	Source      campaign.Source
	ListingText string
	DetailURL   string
	Now         time.Time
}

// Strategy is one level of the resolution chain.
type Strategy interface {
	Method() campaign.Method
	Resolve(ctx context.Context, in Input) (time.Time, bool)
}

// Resolver evaluates its strategies in order.
type Resolver struct {
	clock      campaign.Clock
	logger     *zap.Logger
	strategies []Strategy
}

// NewResolver builds a Resolver. The fallback level is implicit and always last.
func NewResolver(clock campaign.Clock, logger *zap.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{clock: clock, logger: logger, strategies: strategies}
}

// Resolve never fails: when every strategy declines, the source default applies.
func (r *Resolver) Resolve(ctx context.Context, source campaign.Source, listingText, detailURL string) campaign.DeadlineResolution {
	in := Input{
		Source:      source,
		ListingText: listingText,
		DetailURL:   detailURL,
		Now:         r.clock.Now(),
	}
	res := r.resolve(ctx, in)
	metrics.ObserveDeadlineMethod(string(source), string(res.Method))
	return res
}

func (r *Resolver) resolve(ctx context.Context, in Input) campaign.DeadlineResolution {
	for _, s := range r.strategies {
		if d, ok := s.Resolve(ctx, in); ok && !d.IsZero() {
			return campaign.DeadlineResolution{Deadline: d, Method: s.Method()}
		}
	}
	r.logger.Debug("deadline fallback applied",
		zap.String("source", string(in.Source)),
		zap.String("detail_url", in.DetailURL),
	)
	return campaign.DeadlineResolution{Deadline: Fallback(in.Source, in.Now), Method: campaign.MethodFallback}
}

// Fallback is 23:59:59 local time on the source's default offset day.
func Fallback(source campaign.Source, now time.Time) time.Time {
	return EndOfDay(now.AddDate(0, 0, source.OffsetDays()))
}

// ListPage matches the candidate's own listing text.
type ListPage struct{}

// Method implements Strategy.
func (ListPage) Method() campaign.Method { return campaign.MethodListPage }

// Resolve implements Strategy.
func (ListPage) Resolve(_ context.Context, in Input) (time.Time, bool) {
	if in.ListingText == "" {
		return time.Time{}, false
	}
	return MatchListing(in.ListingText, in.Now)
}
