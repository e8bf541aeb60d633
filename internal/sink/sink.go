// Package sink maps validated candidates to stored campaigns and upserts them
// record by record.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/dedupe"
	"github.com/JakeFAU/campaign-crawler/internal/deadline"
	"github.com/JakeFAU/campaign-crawler/internal/metrics"
	"github.com/JakeFAU/campaign-crawler/internal/quality"
)

// Coercion constants.
const (
	PlaceholderTitle    = "제목 없음"
	MissingDeadlineDays = 7
	MinRemainingDays    = 1
	shortTitleRunes     = 5
)

// ErrMissingURL rejects a record that has no detail URL to derive an id from.
var ErrMissingURL = errors.New("detail url is required")

// SaveResult reports one batch write.
type SaveResult struct {
	Saved   int
	Skipped int
	Issues  []string
}

// Sink writes batches through a campaign.Store.
type Sink struct {
	store  campaign.Store
	clock  campaign.Clock
	logger *zap.Logger
}

// New constructs a Sink.
func New(store campaign.Store, clock campaign.Clock, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{store: store, clock: clock, logger: logger}
}

// Save coerces, dedupes by campaign id and upserts records one at a time.
// Per-record failures are skipped and counted. Any other store error aborts
// the batch and reports zero saved; rows already written stay committed.
func (s *Sink) Save(ctx context.Context, records []campaign.CandidateRecord) (SaveResult, error) {
	var res SaveResult
	if len(records) == 0 {
		return res, nil
	}
	now := s.clock.Now()
	rows := make([]campaign.StoredCampaign, 0, len(records))
	for i := range records {
		row, issues, err := s.prepare(records[i], now)
		res.Issues = append(res.Issues, issues...)
		if err != nil {
			res.Skipped++
			res.Issues = append(res.Issues, fmt.Sprintf("record %d skipped: %v", i, err))
			s.logger.Warn("record skipped before save", zap.Int("index", i), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}

	rows, dropped := dedupe.ByCampaignID(rows)
	for _, id := range dropped {
		res.Issues = append(res.Issues, fmt.Sprintf("duplicate campaign_id %s dropped", id))
		s.logger.Warn("duplicate campaign_id in batch", zap.String("campaign_id", id))
	}

	for _, row := range rows {
		err := s.store.Upsert(ctx, row)
		var recErr *campaign.RecordError
		switch {
		case err == nil:
			res.Saved++
		case errors.As(err, &recErr):
			res.Skipped++
			res.Issues = append(res.Issues, recErr.Error())
			s.logger.Warn("record upsert failed", zap.String("campaign_id", row.CampaignID), zap.Error(err))
		default:
			s.logger.Error("batch upsert aborted", zap.String("campaign_id", row.CampaignID), zap.Error(err))
			return SaveResult{Skipped: res.Skipped, Issues: res.Issues}, fmt.Errorf("save batch: %w", err)
		}
	}
	metrics.ObserveSaved(string(records[0].Source), res.Saved)
	return res, nil
}

// prepare maps a candidate to a row. Title and remaining days are never left
// empty or non-positive; every coercion is returned as an issue.
func (s *Sink) prepare(rec campaign.CandidateRecord, now time.Time) (campaign.StoredCampaign, []string, error) {
	if strings.TrimSpace(rec.DetailURL) == "" {
		return campaign.StoredCampaign{}, nil, ErrMissingURL
	}
	id := DeriveCampaignID(rec.Source, rec.DetailURL)
	logger := s.logger.With(zap.String("campaign_id", id))
	var issues []string
	issue := func(msg string) {
		issues = append(issues, id+": "+msg)
	}

	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = PlaceholderTitle
		issue("empty title replaced with placeholder")
		logger.Error("empty title coerced to placeholder")
	}
	if utf8.RuneCountInString(title) < shortTitleRunes {
		issue("title shorter than 5 characters")
		logger.Warn("short title", zap.String("title", title))
	}
	if !rec.Source.Known() {
		issue("unknown source " + string(rec.Source))
		logger.Warn("unknown source", zap.String("source", string(rec.Source)))
	}
	if !strings.HasPrefix(rec.DetailURL, "http") {
		issue("detail url is not absolute")
		logger.Warn("relative detail url", zap.String("detail_url", rec.DetailURL))
	}

	var (
		due       time.Time
		remaining int
	)
	if rec.Deadline == nil || rec.Deadline.IsZero() {
		due = deadline.EndOfDay(now.AddDate(0, 0, MissingDeadlineDays))
		remaining = MissingDeadlineDays
		issue("missing deadline defaulted to 7 days")
		logger.Error("null deadline coerced", zap.Int("remaining_days", remaining))
	} else {
		due = rec.Deadline.Deadline
		remaining = deadline.RemainingDays(now, due)
		if remaining < MinRemainingDays {
			remaining = MinRemainingDays
			issue("non-positive remaining days raised to 1")
			logger.Warn("remaining days coerced", zap.Time("deadline", due))
		}
	}

	var desc *string
	if d := strings.TrimSpace(rec.Description); d != "" {
		desc = &d
	}
	return campaign.StoredCampaign{
		SourceSite:    rec.Source.Site(),
		CampaignID:    id,
		Title:         title,
		Description:   desc,
		RewardPoints:  rec.RewardAmount,
		RemainingDays: remaining,
		Deadline:      due,
		DetailURL:     rec.DetailURL,
		ExtractedAt:   now,
		IsInvalid:     quality.IsInvalidTitle(title),
	}, issues, nil
}
