package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Www.Revu.net/campaign/1", "www.revu.net"},
		{"no scheme", "reviewnote.co.kr/campaigns", "reviewnote.co.kr"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserversAreIdempotentAndCount(t *testing.T) {
	Init()
	Init()

	ObserveRun("metrics-test", true)
	ObserveRun("metrics-test", false)
	ObserveSaved("metrics-test", 3)
	ObserveSaved("metrics-test", 0)
	ObserveItems("metrics-test", "parsed", 4)
	SetQualityScore("metrics-test", 88)
	ObserveDeadlineMethod("metrics-test", "listPage")
	ObserveFetch("static-test", errors.New("boom"))

	require.Equal(t, 1.0, testutil.ToFloat64(crawlRunsTotal.WithLabelValues("metrics-test", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(crawlRunsTotal.WithLabelValues("metrics-test", "failure")))
	require.Equal(t, 3.0, testutil.ToFloat64(savedTotal.WithLabelValues("metrics-test")))
	require.Equal(t, 4.0, testutil.ToFloat64(itemsTotal.WithLabelValues("metrics-test", "parsed")))
	require.Equal(t, 88.0, testutil.ToFloat64(qualityScore.WithLabelValues("metrics-test")))
	require.Equal(t, 1.0, testutil.ToFloat64(deadlineMethodTotal.WithLabelValues("metrics-test", "listPage")))
	require.Equal(t, 1.0, testutil.ToFloat64(fetchTotal.WithLabelValues("static-test", "error")))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://revu.net", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
