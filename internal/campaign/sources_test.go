package campaign

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSourceAcceptsNamesAndSites(t *testing.T) {
	t.Parallel()

	cases := map[string]Source{
		"reviewplace":           SourceReviewPlace,
		"ReviewNote":            SourceReviewNote,
		"revu.net":              SourceRevu,
		"www.reviewplace.co.kr": SourceReviewPlace,
	}
	for raw, want := range cases {
		got, err := ParseSource(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}

	_, err := ParseSource("dinnerqueen")
	require.True(t, errors.Is(err, ErrUnknownSource))
}

func TestLookupReturnsCopies(t *testing.T) {
	t.Parallel()

	cfg, ok := Lookup(SourceRevu)
	require.True(t, ok)
	cfg.ItemSelectors[0] = "mutated"

	again, _ := Lookup(SourceRevu)
	require.Equal(t, `a[href*="/campaign/"]`, again.ItemSelectors[0])
}

func TestOffsetDays(t *testing.T) {
	t.Parallel()

	require.Equal(t, 7, SourceReviewPlace.OffsetDays())
	require.Equal(t, 14, SourceReviewNote.OffsetDays())
	require.Equal(t, 10, SourceRevu.OffsetDays())
	require.Equal(t, 7, Source("unknown").OffsetDays())
	require.Equal(t, "revu.net", SourceRevu.Site())
	require.Equal(t, []Source{SourceReviewPlace, SourceReviewNote, SourceRevu}, Sources())
}

func TestNetworkErrorTimeout(t *testing.T) {
	t.Parallel()

	err := error(&NetworkError{URL: "https://x", Err: ErrTimeout})
	require.True(t, errors.Is(err, ErrTimeout))

	status := &NetworkError{URL: "https://x", StatusCode: 503}
	require.False(t, status.Timeout())
	require.Contains(t, status.Error(), "status 503")
}
