// Package dedupe collapses duplicate records within one batch. Duplicates
// across crawl passes are resolved by the store's (source_site, campaign_id)
// conflict key instead.
package dedupe

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
)

// Key is the within-batch identity of a candidate: normalized title plus reward.
func Key(rec campaign.CandidateRecord) string {
	return NormalizeTitle(rec.Title) + "\x00" + strconv.Itoa(rec.RewardAmount)
}

// NormalizeTitle lowercases and collapses whitespace.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.FieldsFunc(title, unicode.IsSpace), " "))
}

// Dedupe keeps the first candidate of each Key, preserving order.
func Dedupe(records []campaign.CandidateRecord) []campaign.CandidateRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]campaign.CandidateRecord, 0, len(records))
	for _, rec := range records {
		k := Key(rec)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// ByCampaignID keeps the first row per (source_site, campaign_id) and returns
// the ids of the rows it dropped.
func ByCampaignID(rows []campaign.StoredCampaign) ([]campaign.StoredCampaign, []string) {
	type key struct{ site, id string }
	seen := make(map[key]struct{}, len(rows))
	out := make([]campaign.StoredCampaign, 0, len(rows))
	var dropped []string
	for _, row := range rows {
		k := key{row.SourceSite, row.CampaignID}
		if _, dup := seen[k]; dup {
			dropped = append(dropped, row.CampaignID)
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out, dropped
}
