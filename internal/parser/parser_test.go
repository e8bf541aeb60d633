package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
)

func mustConfig(t *testing.T, src campaign.Source) campaign.SourceConfig {
	t.Helper()
	cfg, ok := campaign.Lookup(src)
	require.True(t, ok)
	return cfg
}

const reviewPlaceListing = `<html><body>
<a href="/pr/?id=123">
  <h3>브랜드 체험단 모집</h3>
  <p>제공내역: 세럼 1개 10,000P
  </p>
  <span>D-5</span>
</a>
<a href="/about/pr/?id=9"><h3>회사 소개 이벤트 안내</h3><p>5,000P</p></a>
<a href="/pr/?id=77"><h3>행복다방</h3><p>3,000P</p></a>
<a href="/pr/?id=78"><h3>연남점</h3><p>리뷰 이벤트 3,000P</p></a>
<a href="/pr/?id=79"><h3>무료 체험 포인트 없음</h3><p>상품 제공</p></a>
<a href="/pr/?id=80"><h3>ab</h3><p>9,000P</p></a>
</body></html>`

func TestParseReviewPlace(t *testing.T) {
	t.Parallel()

	records, err := ParseHTML(reviewPlaceListing, mustConfig(t, campaign.SourceReviewPlace))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	require.Equal(t, "브랜드 체험단 모집", first.Title)
	require.Equal(t, 10000, first.RewardAmount)
	require.Equal(t, "https://www.reviewplace.co.kr/pr/?id=123", first.DetailURL)
	require.Equal(t, campaign.SourceReviewPlace, first.Source)
	require.Equal(t, "세럼 1개", first.Description)
	require.Contains(t, first.RawDeadlineText, "D-5")
	require.Nil(t, first.Deadline)

	// Store-like title survives because its text carries an intent keyword.
	require.Equal(t, "연남점", records[1].Title)
}

func TestParseReviewNoteAllowsZeroRewardAndContainers(t *testing.T) {
	t.Parallel()

	html := `<ul>
<li class="campaign-item"><a href="/campaign-view/555"><div class="campaign-title">강남 파스타 방문 체험</div></a><span>모집 3일 남음</span></li>
<li class="campaign-item"><div class="title">링크 없는 캠페인</div></li>
</ul>`
	records, err := ParseHTML(html, mustConfig(t, campaign.SourceReviewNote))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "강남 파스타 방문 체험", records[0].Title)
	require.Zero(t, records[0].RewardAmount)
	require.Equal(t, "https://www.reviewnote.co.kr/campaign-view/555", records[0].DetailURL)
	require.Empty(t, records[0].Description)
}

func TestParseRevuRequiresReward(t *testing.T) {
	t.Parallel()

	html := `<div>
<a href="https://www.revu.net/campaign/abc1"><span class="product-name">신상 립밤 체험단</span><em>20,000원</em></a>
<a href="/campaign/abc2"><span class="product-name">포인트 미정 캠페인</span></a>
<a href="/campaign/abc3"><span class="product-name">1포인트 캠페인 모집</span><em>1P</em></a>
</div>`
	records, err := ParseHTML(html, mustConfig(t, campaign.SourceRevu))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 20000, records[0].RewardAmount)
	require.Equal(t, "https://www.revu.net/campaign/abc1", records[0].DetailURL)
}

func TestParseFirstMatchingItemSelectorWins(t *testing.T) {
	t.Parallel()

	html := `<div>
<div class="campaign-card"><a href="/campaigns/zz"><h3>카드형 캠페인 모집</h3></a><b>5,000P</b></div>
<div data-campaign="1"><a href="/campaigns/yy"><h3>데이터 캠페인 모집</h3></a><b>5,000P</b></div>
</div>`
	records, err := ParseHTML(html, mustConfig(t, campaign.SourceRevu))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "카드형 캠페인 모집", records[0].Title)
}

func TestParseNoItems(t *testing.T) {
	t.Parallel()

	records, err := ParseHTML(`<html><body><p>점검 중</p></body></html>`, mustConfig(t, campaign.SourceReviewPlace))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	base := "https://www.revu.net"
	require.Equal(t, "https://www.revu.net/campaign/1", ResolveURL(base, "/campaign/1"))
	require.Equal(t, "https://www.revu.net/campaign/2", ResolveURL(base+"/", "/campaign/2"))
	require.Equal(t, "https://other.net/x", ResolveURL(base, "https://other.net/x"))
	require.Equal(t, "https://www.revu.net/campaign/3", ResolveURL(base+"/category/", "../campaign/3"))
	require.Equal(t, "https://cdn.revu.net/a", ResolveURL(base, "//cdn.revu.net/a"))
}

func TestExcluded(t *testing.T) {
	t.Parallel()

	require.True(t, Excluded("https://x/faq?id=1", "자주 묻는 질문 모음", "체험"))
	require.True(t, Excluded("https://x/pr/?id=1", "스타벅스카페", "커피"))
	require.False(t, Excluded("https://x/pr/?id=1", "스타벅스카페", "커피 체험"))
	require.False(t, Excluded("https://x/pr/?id=1", "여름 신상 립밤 체험단", "립밤"))
}

func TestExtractReward(t *testing.T) {
	t.Parallel()

	cfg := mustConfig(t, campaign.SourceReviewNote)
	require.Equal(t, 1234567, ExtractReward("보상 1,234,567원", cfg.RewardPattern))
	require.Equal(t, 500, ExtractReward("500 포인트", cfg.RewardPattern))
	require.Zero(t, ExtractReward("보상 없음", cfg.RewardPattern))
	require.Zero(t, ExtractReward("500P", nil))
}
