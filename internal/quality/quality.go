// Package quality scores crawled batches and raises alerts about them.
// Reports are advisory: nothing here blocks persistence.
package quality

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/campaign-crawler/internal/campaign"
	"github.com/JakeFAU/campaign-crawler/internal/deadline"
)

// Thresholds applied by Analyze.
const (
	MinTitleRunes       = 3
	RewardCeiling       = 1_000_000
	CriticalScore       = 70
	NullDeadlineLimit   = 0.5
	FallbackWarnRatio   = 0.5
	LongAverageDays     = 60
	plausibleMinAvgDays = 1
	plausibleMaxAvgDays = 30

	nullPenalty    = 50
	invalidPenalty = 25
	methodBonus    = 5
	sourceBonus    = 5
	avgWindowBonus = 10
)

// Analyze builds the quality report for one batch evaluated at now.
func Analyze(records []campaign.CandidateRecord, now time.Time) campaign.QualityReport {
	a := &analysis{
		now: now,
		report: campaign.QualityReport{
			TotalProcessed: len(records),
			MethodCounts:   map[campaign.Method]int{},
			Alerts:         []campaign.Alert{},
		},
		sources: map[campaign.Source]struct{}{},
	}
	for i := range records {
		a.record(&records[i])
	}
	a.finish()
	return a.report
}

// CriticalAlerts returns the error-severity alerts of report.
func CriticalAlerts(report campaign.QualityReport) []campaign.Alert {
	var out []campaign.Alert
	for _, alert := range report.Alerts {
		if alert.Severity == campaign.SeverityError {
			out = append(out, alert)
		}
	}
	return out
}

type analysis struct {
	now       time.Time
	report    campaign.QualityReport
	sources   map[campaign.Source]struct{}
	totalDays int
	dayCount  int
}

func (a *analysis) record(rec *campaign.CandidateRecord) {
	a.sources[rec.Source] = struct{}{}
	valid := true

	if utf8.RuneCountInString(strings.TrimSpace(rec.Title)) < MinTitleRunes {
		a.alert(campaign.SeverityError, "title missing or too short", rec)
		valid = false
	}

	cfg, _ := campaign.Lookup(rec.Source)
	if rec.RewardAmount <= 0 && !cfg.AllowZeroReward {
		a.alert(campaign.SeverityError, "reward is zero or negative", rec)
		valid = false
	}
	if rec.RewardAmount > RewardCeiling {
		a.alert(campaign.SeverityWarning, fmt.Sprintf("reward unusually high (%d)", rec.RewardAmount), rec)
	}
	if rec.DetailURL != "" && !strings.HasPrefix(rec.DetailURL, "http") {
		a.alert(campaign.SeverityWarning, "detail url is not absolute", rec)
	}

	switch {
	case rec.Deadline == nil:
		a.report.NullDeadlineCount++
		a.alert(campaign.SeverityError, "deadline is null", rec)
		valid = false
	case !wellFormed(*rec.Deadline, a.now):
		a.report.InvalidDeadlineCount++
		a.alert(campaign.SeverityWarning, "deadline is non-standard or already passed", rec)
		valid = false
	default:
		a.report.MethodCounts[rec.Deadline.Method]++
		if rec.Deadline.Method == campaign.MethodFallback {
			a.report.FallbackCount++
			a.alert(campaign.SeverityWarning, "deadline not found; using source default", rec)
		}
		a.totalDays += deadline.RemainingDays(a.now, rec.Deadline.Deadline)
		a.dayCount++
	}

	if valid {
		a.report.ValidCount++
	}
}

func wellFormed(res campaign.DeadlineResolution, now time.Time) bool {
	switch res.Method {
	case campaign.MethodListPage, campaign.MethodDetailPage, campaign.MethodFallback:
	default:
		return false
	}
	return !res.IsZero() && !res.Deadline.Before(now)
}

func (a *analysis) finish() {
	r := &a.report
	if a.dayCount > 0 {
		r.AverageRemainingDays = float64(a.totalDays) / float64(a.dayCount)
	}
	r.Score = a.score()

	if r.TotalProcessed == 0 {
		a.alert(campaign.SeverityInfo, "empty batch", nil)
		return
	}
	total := float64(r.TotalProcessed)
	if nullRatio := float64(r.NullDeadlineCount) / total; nullRatio > NullDeadlineLimit {
		a.alert(campaign.SeverityError, fmt.Sprintf("critical: %.1f%% of campaigns have a null deadline", nullRatio*100), nil)
	}
	if r.Score < CriticalScore {
		a.alert(campaign.SeverityError, fmt.Sprintf("quality score too low: %d/100", r.Score), nil)
	}
	switch fallbackRatio := float64(r.FallbackCount) / total; {
	case r.FallbackCount == r.TotalProcessed:
		a.alert(campaign.SeverityError, "every deadline fell back to the source default; extraction is likely broken", nil)
	case fallbackRatio > FallbackWarnRatio:
		a.alert(campaign.SeverityWarning, fmt.Sprintf("%.1f%% of deadlines fell back to the source default", fallbackRatio*100), nil)
	}
	if r.AverageRemainingDays > LongAverageDays {
		a.alert(campaign.SeverityWarning, fmt.Sprintf("average remaining days unusually long: %.1f", r.AverageRemainingDays), nil)
	}
	a.alert(campaign.SeverityInfo, fmt.Sprintf(
		"processed=%d valid=%d null=%d invalid=%d fallback=%d score=%d avg_days=%.1f",
		r.TotalProcessed, r.ValidCount, r.NullDeadlineCount, r.InvalidDeadlineCount,
		r.FallbackCount, r.Score, r.AverageRemainingDays,
	), nil)
}

// score starts at 100, subtracts proportional penalties for null and invalid
// deadlines, adds small diversity and plausibility bonuses, then clamps.
func (a *analysis) score() int {
	r := a.report
	if r.TotalProcessed == 0 {
		return 100
	}
	total := float64(r.TotalProcessed)
	score := 100.0
	score -= float64(r.NullDeadlineCount) / total * nullPenalty
	score -= float64(r.InvalidDeadlineCount) / total * invalidPenalty

	methods := 0
	for _, n := range r.MethodCounts {
		if n > 0 {
			methods++
		}
	}
	if methods >= 2 {
		score += methodBonus
	}
	if len(a.sources) > 1 {
		score += sourceBonus
	}
	if r.AverageRemainingDays >= plausibleMinAvgDays && r.AverageRemainingDays <= plausibleMaxAvgDays {
		score += avgWindowBonus
	}
	return int(math.Round(math.Max(0, math.Min(100, score))))
}

func (a *analysis) alert(sev campaign.Severity, msg string, rec *campaign.CandidateRecord) {
	alert := campaign.Alert{Severity: sev, Message: msg, Timestamp: a.now}
	if rec != nil {
		alert.Campaign = rec.Title
		alert.Source = rec.Source
	}
	a.report.Alerts = append(a.report.Alerts, alert)
}
