// Package parser turns listing HTML into candidate campaign records using
// per-source selector tables.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
)

// ParseError wraps a document that could not be read at all.
type ParseError struct {
	Source campaign.Source
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s listing: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	excludedPaths = []string{
		"/brandzone/", "/brands/", "/company/", "/about/", "/faq",
		"/guide", "/policy", "/terms", "/mypage", "/login",
		"/signup", "/search", "/notice",
	}
	storeNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[가-힣]+다방$`),
		regexp.MustCompile(`^[가-힣]+카페$`),
		regexp.MustCompile(`^[가-힣]+점$`),
		regexp.MustCompile(`^[가-힣]{2,6}$`),
	}
	intentKeywords = []string{"체험", "캠페인", "리뷰", "모집", "신청", "참여", "이벤트", "혜택"}

	offerLine    = regexp.MustCompile(`제공내역[:\s]*([^\n]+)`)
	pointsAmount = regexp.MustCompile(`\d{1,3}(?:,\d{3})*\s*P`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// ParseHTML parses raw listing HTML with cfg.
func ParseHTML(html string, cfg campaign.SourceConfig) ([]campaign.CandidateRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ParseError{Source: cfg.Source, Err: err}
	}
	return Parse(doc, cfg), nil
}

// Parse extracts candidates from the items matched by the first item selector
// that matches anything. Items that fail title, URL, exclusion or reward
// checks are dropped silently.
func Parse(doc *goquery.Document, cfg campaign.SourceConfig) []campaign.CandidateRecord {
	items := selectItems(doc, cfg.ItemSelectors)
	if items == nil {
		return nil
	}
	records := make([]campaign.CandidateRecord, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		if rec, ok := parseItem(item, cfg); ok {
			records = append(records, rec)
		}
	})
	return records
}

func selectItems(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func parseItem(item *goquery.Selection, cfg campaign.SourceConfig) (campaign.CandidateRecord, bool) {
	title := extractTitle(item, cfg.TitleSelectors)
	if len([]rune(title)) < 3 {
		return campaign.CandidateRecord{}, false
	}

	detailURL := extractURL(item, cfg.BaseURL)
	if detailURL == "" || cfg.URLPattern == nil || !cfg.URLPattern.MatchString(detailURL) {
		return campaign.CandidateRecord{}, false
	}

	rawText := item.Text()
	if Excluded(detailURL, title, rawText) {
		return campaign.CandidateRecord{}, false
	}

	reward := ExtractReward(rawText, cfg.RewardPattern)
	if !cfg.AllowZeroReward && reward <= cfg.MinReward {
		return campaign.CandidateRecord{}, false
	}

	rec := campaign.CandidateRecord{
		Title:           title,
		RewardAmount:    reward,
		RawDeadlineText: collapse(rawText),
		DetailURL:       detailURL,
		Source:          cfg.Source,
	}
	if cfg.StripRewardFromDescription {
		rec.Description = extractDescription(rawText, reward)
	}
	return rec, true
}

func extractTitle(item *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if title := collapse(item.Find(sel).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

// extractURL reads the item's own href, or the first descendant link when the
// item is a container rather than an anchor.
func extractURL(item *goquery.Selection, baseURL string) string {
	href, ok := item.Attr("href")
	if !ok {
		href, ok = item.Find("a[href]").First().Attr("href")
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return ""
	}
	return ResolveURL(baseURL, href)
}

// ResolveURL makes href absolute against baseURL.
func ResolveURL(baseURL, href string) string {
	if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") {
		return strings.TrimRight(baseURL, "/") + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Excluded reports whether an item points at a non-campaign page, or carries a
// bare store-name title with no campaign-intent keyword in its text.
func Excluded(detailURL, title, text string) bool {
	for _, p := range excludedPaths {
		if strings.Contains(detailURL, p) {
			return true
		}
	}
	if hasIntentKeyword(text) {
		return false
	}
	for _, p := range storeNamePatterns {
		if p.MatchString(title) {
			return true
		}
	}
	return false
}

func hasIntentKeyword(text string) bool {
	for _, kw := range intentKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ExtractReward returns the first amount captured by pattern, 0 when absent.
func ExtractReward(text string, pattern *regexp.Regexp) int {
	if pattern == nil {
		return 0
	}
	m := pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

func extractDescription(text string, reward int) string {
	m := offerLine.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	desc := strings.TrimSpace(m[1])
	if reward > 0 {
		desc = strings.TrimSpace(pointsAmount.ReplaceAllString(desc, ""))
	}
	return collapse(desc)
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
