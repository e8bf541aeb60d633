package sink

import (
	"regexp"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/hash/sha256"
)

var (
	sourceIDPatterns = map[campaign.Source]*regexp.Regexp{
		campaign.SourceReviewPlace: regexp.MustCompile(`pr/\?id=(\d+)`),
		campaign.SourceReviewNote:  regexp.MustCompile(`campaigns?/(\d+)`),
		campaign.SourceRevu:        regexp.MustCompile(`campaign/([a-zA-Z0-9]+)`),
	}
	queryID = regexp.MustCompile(`[?&]id=([a-zA-Z0-9]+)`)
)

// DeriveCampaignID maps a detail URL to a stable per-source identifier: the
// source's own id pattern, then a generic id query parameter, then a hash of
// (source, url). The same URL always yields the same id.
func DeriveCampaignID(source campaign.Source, detailURL string) string {
	if p, ok := sourceIDPatterns[source]; ok {
		if m := p.FindStringSubmatch(detailURL); m != nil {
			return string(source) + "-" + m[1]
		}
	}
	if m := queryID.FindStringSubmatch(detailURL); m != nil {
		return string(source) + "-" + m[1]
	}
	return string(source) + "-" + sha256.Key(16, string(source), detailURL)
}
