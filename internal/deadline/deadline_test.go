package deadline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
)

var seoul = mustLocation("Asia/Seoul")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	html, ok := f.pages[url]
	if !ok {
		return "", &campaign.NetworkError{URL: url, StatusCode: 404}
	}
	return html, nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]campaign.DeadlineResolution
	failGet bool
}

func (c *mapCache) Get(_ context.Context, url string) (campaign.DeadlineResolution, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return campaign.DeadlineResolution{}, false, errors.New("cache down")
	}
	res, ok := c.entries[url]
	return res, ok, nil
}

func (c *mapCache) Set(_ context.Context, url string, res campaign.DeadlineResolution) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]campaign.DeadlineResolution{}
	}
	c.entries[url] = res
	return nil
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, seoul)
}

func TestListPageRelativeMarkers(t *testing.T) {
	t.Parallel()

	now := at(2025, time.August, 1, 10, 30)
	tests := []struct {
		name string
		text string
		days int
		ok   bool
	}{
		{name: "d-n", text: "브랜드 체험단 D-6", days: 6, ok: true},
		{name: "underscored", text: "_D_ - 6 남음", days: 6, ok: true},
		{name: "lowercase", text: "d-12", days: 12, ok: true},
		{name: "days left", text: "3일 남음", days: 3, ok: true},
		{name: "remaining", text: "남은 5일", days: 5, ok: true},
		{name: "before close", text: "마감 2일 전", days: 2, ok: true},
		{name: "zero rejected", text: "D-0", ok: false},
		{name: "too far", text: "D-400", ok: false},
		{name: "nothing", text: "상시 모집", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d, ok := MatchListing(tc.text, now)
			require.Equal(t, tc.ok, ok)
			if !tc.ok {
				return
			}
			require.Equal(t, tc.days, RemainingDays(now, d))
			require.Equal(t, 23, d.Hour())
			require.Equal(t, 59, d.Minute())
			require.Equal(t, 59, d.Second())
		})
	}
}

func TestListPageMonthDayRollsOver(t *testing.T) {
	t.Parallel()

	before := at(2025, time.August, 1, 9, 0)
	d, ok := MatchListing("8.26 마감", before)
	require.True(t, ok)
	require.Equal(t, time.Date(2025, time.August, 26, 23, 59, 59, 0, seoul), d)

	after := at(2025, time.August, 27, 9, 0)
	d, ok = MatchListing("8/26 마감", after)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, time.August, 26, 23, 59, 59, 0, seoul), d)

	sameDay := at(2025, time.August, 26, 18, 0)
	d, ok = MatchListing("8-26 마감", sameDay)
	require.True(t, ok)
	require.Equal(t, 0, RemainingDays(sameDay, d))
}

func TestListPageRejectsImpossibleDates(t *testing.T) {
	t.Parallel()

	_, ok := MatchListing("2.30 마감", at(2025, time.January, 10, 9, 0))
	require.False(t, ok)
	_, ok = MatchListing("13.01 마감", at(2025, time.January, 10, 9, 0))
	require.False(t, ok)
}

func TestMonthDayLeapDay(t *testing.T) {
	t.Parallel()

	d, ok := MonthDay(2, 29, at(2027, time.March, 1, 0, 0))
	require.True(t, ok)
	require.Equal(t, 2028, d.Year())

	_, ok = MonthDay(2, 29, at(2025, time.March, 1, 0, 0))
	require.False(t, ok)
}

func TestResolverListPageWins(t *testing.T) {
	t.Parallel()

	now := at(2025, time.August, 1, 10, 0)
	fetcher := &fakeFetcher{}
	r := NewResolver(fixedClock{now}, nil, ListPage{}, NewDetailPage(fetcher, nil))

	res := r.Resolve(context.Background(), campaign.SourceReviewPlace, "체험단 D-6", "https://www.reviewplace.co.kr/pr/?id=1")
	require.Equal(t, campaign.MethodListPage, res.Method)
	require.Equal(t, 6, RemainingDays(now, res.Deadline))
	require.Zero(t, fetcher.calls)
}

func TestResolverFallbackPerSource(t *testing.T) {
	t.Parallel()

	now := at(2025, time.August, 1, 10, 0)
	r := NewResolver(fixedClock{now}, nil, ListPage{})

	tests := []struct {
		source campaign.Source
		days   int
	}{
		{campaign.SourceReviewPlace, 7},
		{campaign.SourceReviewNote, 14},
		{campaign.SourceRevu, 10},
		{campaign.Source("unknown"), 7},
	}
	for _, tc := range tests {
		res := r.Resolve(context.Background(), tc.source, "정보 없음", "")
		require.Equal(t, campaign.MethodFallback, res.Method)
		require.False(t, res.IsZero())
		require.Equal(t, tc.days, RemainingDays(now, res.Deadline), tc.source)
		require.Equal(t, EndOfDay(res.Deadline), res.Deadline)
	}
}

func TestDetailPageRecruitmentBeatsReviewPeriod(t *testing.T) {
	t.Parallel()

	now := at(2025, time.August, 1, 10, 0)
	url := "https://www.reviewnote.co.kr/campaigns/9"
	fetcher := &fakeFetcher{pages: map[string]string{url: `<html><body>
<div class="store-info"><span>리뷰 등록기간 8.20 ~ 8.31</span></div>
<div class="campaign-content"><p>체험 안내</p></div>
<section><p>모집기간: 8.01 ~ 8.12</p></section>
</body></html>`}}

	r := NewResolver(fixedClock{now}, nil, ListPage{}, NewDetailPage(fetcher, nil))
	res := r.Resolve(context.Background(), campaign.SourceReviewNote, "체험단", url)
	require.Equal(t, campaign.MethodDetailPage, res.Method)
	require.Equal(t, time.Date(2025, time.August, 12, 23, 59, 59, 0, seoul), res.Deadline)
}

func TestDetailPageReviewPeriodIsLastResort(t *testing.T) {
	t.Parallel()

	now := at(2025, time.August, 1, 10, 0)
	d, ok := ScanDetail(`<div class="period">리뷰 등록기간 8.20 ~ 8.31</div>`, campaign.SourceRevu, now)
	require.True(t, ok)
	require.Equal(t, time.Date(2025, time.August, 20, 23, 59, 59, 0, seoul), d)
}

func TestScanDetailDateForms(t *testing.T) {
	t.Parallel()

	now := at(2025, time.April, 20, 10, 0)
	tests := []struct {
		name string
		html string
		want time.Time
		ok   bool
	}{
		{name: "full date", html: `<p>마감일 2025.05.03</p>`, want: time.Date(2025, time.May, 3, 23, 59, 59, 0, seoul), ok: true},
		{name: "past full date", html: `<p>마감일 2024-05-03</p>`, ok: false},
		{name: "korean date", html: `<strong>5월 7일</strong>`, want: time.Date(2025, time.May, 7, 23, 59, 59, 0, seoul), ok: true},
		{name: "day of month rolls", html: `<span>15일 마감</span>`, want: time.Date(2025, time.May, 15, 23, 59, 59, 0, seoul), ok: true},
		{name: "relative", html: `<div class="deadline">D-3</div>`, want: time.Date(2025, time.April, 23, 23, 59, 59, 0, seoul), ok: true},
		{name: "application period", html: `<p>체험단 신청기간 4/18 ~ 4/25</p>`, want: time.Date(2025, time.April, 25, 23, 59, 59, 0, seoul), ok: true},
		{name: "nothing", html: `<p>문의 바랍니다</p>`, ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d, ok := ScanDetail(tc.html, campaign.SourceReviewPlace, now)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want, d)
			}
		})
	}
}

func TestDetailPageUsesCache(t *testing.T) {
	t.Parallel()

	now := at(2025, time.August, 1, 10, 0)
	url := "https://www.revu.net/campaign/abc"
	fetcher := &fakeFetcher{pages: map[string]string{url: `<div class="product-info">D-9</div>`}}
	cache := &mapCache{}
	strategy := NewDetailPage(fetcher, nil, WithCache(cache))

	first, ok := strategy.Resolve(context.Background(), Input{Source: campaign.SourceRevu, DetailURL: url, Now: now})
	require.True(t, ok)
	second, ok := strategy.Resolve(context.Background(), Input{Source: campaign.SourceRevu, DetailURL: url, Now: now})
	require.True(t, ok)
	require.Equal(t, first, second)
	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, campaign.MethodDetailPage, cache.entries[url].Method)
}

func TestDetailPageIgnoresExpiredCacheAndCacheErrors(t *testing.T) {
	t.Parallel()

	now := at(2025, time.August, 1, 10, 0)
	url := "https://www.revu.net/campaign/old"
	fetcher := &fakeFetcher{pages: map[string]string{url: `<p>D-2</p>`}}
	cache := &mapCache{entries: map[string]campaign.DeadlineResolution{
		url: {Deadline: now.Add(-time.Hour), Method: campaign.MethodDetailPage},
	}}
	d, ok := NewDetailPage(fetcher, nil, WithCache(cache)).Resolve(context.Background(), Input{Source: campaign.SourceRevu, DetailURL: url, Now: now})
	require.True(t, ok)
	require.Equal(t, 2, RemainingDays(now, d))

	broken := &mapCache{failGet: true}
	_, ok = NewDetailPage(fetcher, nil, WithCache(broken)).Resolve(context.Background(), Input{Source: campaign.SourceRevu, DetailURL: url, Now: now})
	require.True(t, ok)
	require.Equal(t, 2, fetcher.calls)
}

func TestDetailPageFetchBudget(t *testing.T) {
	t.Parallel()

	now := at(2025, time.August, 1, 10, 0)
	fetcher := &fakeFetcher{pages: map[string]string{}}
	r := NewResolver(fixedClock{now}, nil, ListPage{}, NewDetailPage(fetcher, nil, WithMaxFetches(2)))
	for _, url := range []string{"https://a/campaign/1", "https://a/campaign/2", "https://a/campaign/3"} {
		res := r.Resolve(context.Background(), campaign.SourceRevu, "", url)
		require.Equal(t, campaign.MethodFallback, res.Method)
	}
	require.Equal(t, 2, fetcher.calls)
}

func TestRemainingDays(t *testing.T) {
	t.Parallel()

	now := at(2025, time.August, 1, 23, 0)
	require.Equal(t, 0, RemainingDays(now, at(2025, time.August, 1, 23, 59)))
	require.Equal(t, 1, RemainingDays(now, at(2025, time.August, 2, 0, 1)))
	require.Equal(t, 0, RemainingDays(now, at(2025, time.July, 20, 0, 0)))
	// A UTC deadline is compared on the local calendar.
	require.Equal(t, 1, RemainingDays(now, time.Date(2025, time.August, 1, 16, 0, 0, 0, time.UTC)))
}
