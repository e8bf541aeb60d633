package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/deadline"
	"github.com/JakeFAU/campaign-crawler/internal/storage/memory"
)

var now = time.Date(2025, time.August, 1, 10, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return now }

type scriptedStore struct {
	rows   []campaign.StoredCampaign
	failOn map[string]error
}

func (s *scriptedStore) Upsert(_ context.Context, row campaign.StoredCampaign) error {
	if err, ok := s.failOn[row.CampaignID]; ok {
		return err
	}
	s.rows = append(s.rows, row)
	return nil
}

func candidate(id, title string, days int) campaign.CandidateRecord {
	return campaign.CandidateRecord{
		Title:        title,
		RewardAmount: 10000,
		DetailURL:    "https://www.reviewplace.co.kr/pr/?id=" + id,
		Source:       campaign.SourceReviewPlace,
		Description:  "세럼 1개",
		Deadline: &campaign.DeadlineResolution{
			Deadline: deadline.EndOfDay(now.AddDate(0, 0, days)),
			Method:   campaign.MethodListPage,
		},
	}
}

func TestDeriveCampaignID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source campaign.Source
		url    string
		want   string
	}{
		{campaign.SourceReviewPlace, "https://www.reviewplace.co.kr/pr/?id=240529", "reviewplace-240529"},
		{campaign.SourceReviewNote, "https://www.reviewnote.co.kr/campaigns/123", "reviewnote-123"},
		{campaign.SourceReviewNote, "https://www.reviewnote.co.kr/campaign/77", "reviewnote-77"},
		{campaign.SourceRevu, "https://www.revu.net/campaign/abc123", "revu-abc123"},
		{campaign.SourceRevu, "https://www.revu.net/view?id=X9", "revu-X9"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, DeriveCampaignID(tc.source, tc.url), tc.url)
	}

	hashed := DeriveCampaignID(campaign.SourceRevu, "https://www.revu.net/special/landing")
	require.Len(t, hashed, len("revu-")+16)
	require.Equal(t, hashed, DeriveCampaignID(campaign.SourceRevu, "https://www.revu.net/special/landing"))
	require.NotEqual(t, hashed, DeriveCampaignID(campaign.SourceReviewNote, "https://www.revu.net/special/landing"))
}

func TestSaveMapsRecord(t *testing.T) {
	t.Parallel()

	store := &scriptedStore{}
	res, err := New(store, fixedClock{}, nil).Save(context.Background(), []campaign.CandidateRecord{
		candidate("123", "브랜드 체험단 모집", 5),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Saved)
	require.Len(t, store.rows, 1)

	row := store.rows[0]
	require.Equal(t, "reviewplace.co.kr", row.SourceSite)
	require.Equal(t, "reviewplace-123", row.CampaignID)
	require.Equal(t, 10000, row.RewardPoints)
	require.Equal(t, 5, row.RemainingDays)
	require.Equal(t, deadline.EndOfDay(now.AddDate(0, 0, 5)), row.Deadline)
	require.Equal(t, now, row.ExtractedAt)
	require.NotNil(t, row.Description)
	require.Equal(t, "세럼 1개", *row.Description)
	require.False(t, row.IsInvalid)
	require.False(t, row.IsHidden)
}

func TestSaveCoercesNullSafety(t *testing.T) {
	t.Parallel()

	empty := candidate("1", "   ", 5)
	noDeadline := candidate("2", "무료 체험 이벤트 참여", 0)
	noDeadline.Deadline = nil
	expired := candidate("3", "지난 캠페인 리뷰 모집", 0)
	expired.Deadline.Deadline = now.AddDate(0, 0, -2)
	noDesc := candidate("4", "설명 없는 체험단 모집", 3)
	noDesc.Description = ""

	store := &scriptedStore{}
	res, err := New(store, fixedClock{}, nil).Save(context.Background(), []campaign.CandidateRecord{empty, noDeadline, expired, noDesc})
	require.NoError(t, err)
	require.Equal(t, 4, res.Saved)

	require.Equal(t, PlaceholderTitle, store.rows[0].Title)
	require.True(t, store.rows[0].IsInvalid)
	require.Equal(t, MissingDeadlineDays, store.rows[1].RemainingDays)
	require.False(t, store.rows[1].Deadline.IsZero())
	require.Equal(t, MinRemainingDays, store.rows[2].RemainingDays)
	require.Nil(t, store.rows[3].Description)
	for _, row := range store.rows {
		require.NotEmpty(t, row.Title)
		require.Positive(t, row.RemainingDays)
	}
	require.Contains(t, res.Issues, "reviewplace-1: empty title replaced with placeholder")
}

func TestSaveDropsDuplicateIDsAndMissingURLs(t *testing.T) {
	t.Parallel()

	first := candidate("9", "첫 번째 체험단 모집", 4)
	second := candidate("9", "두 번째 체험단 모집", 4)
	noURL := candidate("10", "링크 없는 체험단", 4)
	noURL.DetailURL = ""

	store := &scriptedStore{}
	res, err := New(store, fixedClock{}, nil).Save(context.Background(), []campaign.CandidateRecord{first, second, noURL})
	require.NoError(t, err)
	require.Equal(t, 1, res.Saved)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, "첫 번째 체험단 모집", store.rows[0].Title)
	require.Contains(t, res.Issues, "duplicate campaign_id reviewplace-9 dropped")
}

func TestSaveSkipsRecordErrors(t *testing.T) {
	t.Parallel()

	store := &scriptedStore{failOn: map[string]error{
		"reviewplace-2": &campaign.RecordError{CampaignID: "reviewplace-2", Err: errors.New("value too long")},
	}}
	res, err := New(store, fixedClock{}, nil).Save(context.Background(), []campaign.CandidateRecord{
		candidate("1", "하나 체험단 모집", 3),
		candidate("2", "둘 체험단 모집", 3),
		candidate("3", "셋 체험단 모집", 3),
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Saved)
	require.Equal(t, 1, res.Skipped)
}

func TestSaveAbortsOnConnectivityError(t *testing.T) {
	t.Parallel()

	store := &scriptedStore{failOn: map[string]error{
		"reviewplace-2": errors.New("connection reset by peer"),
	}}
	res, err := New(store, fixedClock{}, nil).Save(context.Background(), []campaign.CandidateRecord{
		candidate("1", "하나 체험단 모집", 3),
		candidate("2", "둘 체험단 모집", 3),
		candidate("3", "셋 체험단 모집", 3),
	})
	require.ErrorContains(t, err, "save batch")
	require.Zero(t, res.Saved)
	// The first row was already committed.
	require.Len(t, store.rows, 1)
}

func TestSaveIsIdempotentAcrossPasses(t *testing.T) {
	t.Parallel()

	store := memory.NewCampaignStore()
	s := New(store, fixedClock{}, nil)
	batch := []campaign.CandidateRecord{
		candidate("1", "하나 체험단 모집", 3),
		candidate("2", "둘 체험단 모집", 6),
	}
	for pass := 0; pass < 2; pass++ {
		res, err := s.Save(context.Background(), batch)
		require.NoError(t, err)
		require.Equal(t, 2, res.Saved)
	}
	require.Equal(t, 2, store.Len())
	inserts, updates := store.Counts()
	require.Equal(t, 2, inserts)
	require.Equal(t, 2, updates)
}

func TestSaveEmptyBatch(t *testing.T) {
	t.Parallel()

	res, err := New(&scriptedStore{}, fixedClock{}, nil).Save(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, res.Saved)
}
