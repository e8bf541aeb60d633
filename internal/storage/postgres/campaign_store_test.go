package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
)

func sampleRow() campaign.StoredCampaign {
	now := time.Unix(1754000000, 0).UTC()
	desc := "세럼 1개"
	return campaign.StoredCampaign{
		SourceSite:    "reviewplace.co.kr",
		CampaignID:    "reviewplace-123",
		Title:         "브랜드 체험단 모집",
		Description:   &desc,
		RewardPoints:  10000,
		RemainingDays: 5,
		Deadline:      now.AddDate(0, 0, 5),
		DetailURL:     "https://www.reviewplace.co.kr/pr/?id=123",
		ExtractedAt:   now,
	}
}

func expectUpsert(mock pgxmock.PgxPoolIface, row campaign.StoredCampaign) *pgxmock.ExpectedExec {
	return mock.ExpectExec(`(?s)INSERT INTO campaigns .* ON CONFLICT \(source_site, campaign_id\) DO UPDATE SET`).
		WithArgs(
			row.SourceSite,
			row.CampaignID,
			row.Title,
			row.Description,
			row.RewardPoints,
			row.RemainingDays,
			row.Deadline,
			row.DetailURL,
			row.ApplicationsCurrent,
			row.ApplicationsTotal,
			row.ExtractedAt,
			row.IsHidden,
			row.IsInvalid,
			row.ExtractedAt,
		)
}

func TestUpsertWritesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCampaignStoreWithPool(mock, "")
	require.NoError(t, err)

	row := sampleRow()
	expectUpsert(mock, row).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Upsert(context.Background(), row))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertConstraintViolationIsRecordError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCampaignStoreWithPool(mock, "campaigns")
	require.NoError(t, err)

	row := sampleRow()
	expectUpsert(mock, row).WillReturnError(&pgconn.PgError{Code: "23502", Message: "null value in column"})

	err = store.Upsert(context.Background(), row)
	var recErr *campaign.RecordError
	require.True(t, errors.As(err, &recErr))
	require.Equal(t, "reviewplace-123", recErr.CampaignID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertConnectivityErrorIsFatal(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCampaignStoreWithPool(mock, "campaigns")
	require.NoError(t, err)

	row := sampleRow()
	expectUpsert(mock, row).WillReturnError(errors.New("connection refused"))

	err = store.Upsert(context.Background(), row)
	require.Error(t, err)
	var recErr *campaign.RecordError
	require.False(t, errors.As(err, &recErr))
	require.ErrorContains(t, err, "upsert campaign")
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCampaignStoreWithPool(mock, "campaigns")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewCampaignStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCampaignStoreWithPool(nil, "campaigns")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewCampaignStoreWithPool(mock, "campaigns; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")
}

func TestUpsertQueryReplacesEveryNonKeyColumn(t *testing.T) {
	t.Parallel()

	q := upsertQuery("campaigns")
	require.Contains(t, q, "title = EXCLUDED.title")
	require.Contains(t, q, "is_invalid = EXCLUDED.is_invalid")
	require.Contains(t, q, "updated_at = EXCLUDED.updated_at")
	require.NotContains(t, q, "campaign_id = EXCLUDED")
	require.Contains(t, q, "$14")
}

func TestNewCampaignStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewCampaignStore(context.Background(), Config{})
	require.ErrorContains(t, err, "db.dsn is required")
}
