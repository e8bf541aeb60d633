package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
)

// ModeAll crawls every known source.
const ModeAll = "all"

// ErrUnsupportedMode rejects a mode that is neither "all" nor a known source.
var ErrUnsupportedMode = errors.New("unsupported mode")

// Summary aggregates per-source results.
type Summary struct {
	Total         int   `json:"total"`
	Successful    int   `json:"successful"`
	Failed        int   `json:"failed"`
	TotalItems    int   `json:"totalItems"`
	TotalSaved    int   `json:"totalSaved"`
	TotalDuration int64 `json:"totalDuration"`
}

// RunSummary is the outcome of one triggered invocation.
type RunSummary struct {
	Success   bool                    `json:"success"`
	Mode      string                  `json:"mode"`
	Summary   Summary                 `json:"summary"`
	Results   []campaign.SourceResult `json:"results"`
	Timestamp time.Time               `json:"timestamp"`
}

// ParseMode maps a trigger mode to the sources it crawls. An empty mode means all.
func ParseMode(raw string) ([]campaign.Source, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	if mode == "" || mode == ModeAll {
		return campaign.Sources(), nil
	}
	source, err := campaign.ParseSource(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, raw)
	}
	return []campaign.Source{source}, nil
}

// Run executes mode and summarizes it. Success is true when any source succeeded.
func (o *Orchestrator) Run(ctx context.Context, mode string) (RunSummary, error) {
	sources, err := ParseMode(mode)
	if err != nil {
		return RunSummary{}, err
	}
	if strings.TrimSpace(mode) == "" {
		mode = ModeAll
	}
	start := time.Now()
	results := o.run(ctx, sources)
	return Summarize(mode, results, time.Since(start), o.clock.Now()), nil
}

// Summarize folds results into a RunSummary.
func Summarize(mode string, results []campaign.SourceResult, elapsed time.Duration, now time.Time) RunSummary {
	s := Summary{Total: len(results), TotalDuration: elapsed.Milliseconds()}
	for _, r := range results {
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
		}
		s.TotalItems += r.Count
		s.TotalSaved += r.Saved
	}
	return RunSummary{
		Success:   s.Successful > 0,
		Mode:      mode,
		Summary:   s,
		Results:   results,
		Timestamp: now,
	}
}
