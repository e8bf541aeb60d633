package campaign

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Source names one crawled site.
type Source string

// Known sources.
const (
	SourceReviewPlace Source = "reviewplace"
	SourceReviewNote  Source = "reviewnote"
	SourceRevu        Source = "revu"
)

// FetchPlan selects how a source's listing is retrieved.
type FetchPlan string

// Fetch plans.
const (
	PlanStatic        FetchPlan = "static"
	PlanRenderedFirst FetchPlan = "renderedFirst"
)

// DefaultOffsetDays applies to sources missing from the table.
const DefaultOffsetDays = 7

// SourceConfig is the per-source parsing and fetching configuration.
// Values returned by Lookup are copies; the table itself is never mutated.
type SourceConfig struct {
	Source          Source
	Site            string
	ItemSelectors   []string
	TitleSelectors  []string
	RewardPattern   *regexp.Regexp
	URLPattern      *regexp.Regexp
	BaseURL         string
	MinReward       int
	AllowZeroReward bool
	// StripRewardFromDescription extracts the "제공내역" line as the description.
	StripRewardFromDescription bool
	DefaultOffsetDays          int
	DetailSelectors            []string
	Plan                       FetchPlan
	RenderedURL                string
	StaticURL                  string
}

var (
	pointsOnly   = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*)\s*P`)
	pointsOrWon  = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*)\s*[P포원]`)
	sourceTable  = map[Source]SourceConfig{}
	sourceOrder  = []Source{SourceReviewPlace, SourceReviewNote, SourceRevu}
	siteToSource = map[string]Source{}
)

func init() {
	register(SourceConfig{
		Source:                     SourceReviewPlace,
		Site:                       "reviewplace.co.kr",
		ItemSelectors:              []string{`a[href*="/pr/?id="]`},
		TitleSelectors:             []string{"h3", ".title", "p"},
		RewardPattern:              pointsOnly,
		URLPattern:                 regexp.MustCompile(`/pr/\?id=`),
		BaseURL:                    "https://www.reviewplace.co.kr",
		MinReward:                  1,
		StripRewardFromDescription: true,
		DefaultOffsetDays:          7,
		DetailSelectors:            []string{".campaign-detail", ".pr-info"},
		Plan:                       PlanStatic,
		StaticURL:                  "https://www.reviewplace.co.kr/pr/?ct1=제품",
	})
	register(SourceConfig{
		Source: SourceReviewNote,
		Site:   "reviewnote.co.kr",
		ItemSelectors: []string{
			`a[href*="/campaigns/"]`,
			`a[href*="/campaign/"]`,
			".campaign-item",
			".list-item",
		},
		TitleSelectors:    []string{"h3", ".title", ".campaign-title", "p"},
		RewardPattern:     pointsOrWon,
		URLPattern:        regexp.MustCompile(`/campaign`),
		BaseURL:           "https://www.reviewnote.co.kr",
		AllowZeroReward:   true,
		DefaultOffsetDays: 14,
		DetailSelectors:   []string{".campaign-content", ".store-info"},
		Plan:              PlanRenderedFirst,
		RenderedURL:       "https://www.reviewnote.co.kr/campaigns",
		StaticURL:         "https://www.reviewnote.co.kr/campaigns",
	})
	register(SourceConfig{
		Source: SourceRevu,
		Site:   "revu.net",
		ItemSelectors: []string{
			`a[href*="/campaign/"]`,
			".campaign-card",
			".product-item",
			"[data-campaign]",
		},
		TitleSelectors:    []string{"h3", ".title", ".product-name", ".campaign-title"},
		RewardPattern:     pointsOrWon,
		URLPattern:        regexp.MustCompile(`/campaign`),
		BaseURL:           "https://www.revu.net",
		MinReward:         1,
		DefaultOffsetDays: 10,
		DetailSelectors:   []string{".product-info", ".campaign-meta"},
		Plan:              PlanRenderedFirst,
		RenderedURL:       "https://www.revu.net/category/오늘오픈",
		StaticURL:         "https://www.revu.net/category/제품",
	})
}

func register(cfg SourceConfig) {
	sourceTable[cfg.Source] = cfg
	siteToSource[cfg.Site] = cfg.Source
}

// Sources returns the known sources in crawl order.
func Sources() []Source {
	return slices.Clone(sourceOrder)
}

// Lookup returns a copy of the configuration for source.
func Lookup(source Source) (SourceConfig, bool) {
	cfg, ok := sourceTable[source]
	if !ok {
		return SourceConfig{}, false
	}
	cfg.ItemSelectors = slices.Clone(cfg.ItemSelectors)
	cfg.TitleSelectors = slices.Clone(cfg.TitleSelectors)
	cfg.DetailSelectors = slices.Clone(cfg.DetailSelectors)
	return cfg, true
}

// ParseSource accepts a source name ("revu") or its site ("revu.net").
func ParseSource(raw string) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := sourceTable[Source(key)]; ok {
		return Source(key), nil
	}
	if src, ok := siteToSource[strings.TrimPrefix(key, "www.")]; ok {
		return src, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, raw)
}

// Site returns the site stored in the source_site column.
func (s Source) Site() string {
	if cfg, ok := sourceTable[s]; ok {
		return cfg.Site
	}
	return string(s)
}

// Known reports whether s is in the lookup table.
func (s Source) Known() bool {
	_, ok := sourceTable[s]
	return ok
}

// OffsetDays is the fallback deadline offset for s.
func (s Source) OffsetDays() int {
	if cfg, ok := sourceTable[s]; ok && cfg.DefaultOffsetDays > 0 {
		return cfg.DefaultOffsetDays
	}
	return DefaultOffsetDays
}
