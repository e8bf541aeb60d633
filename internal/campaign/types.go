// Package campaign defines the core types shared across the ingestion pipeline.
package campaign

import (
	"time"
)

// Method identifies which strategy produced a deadline.
type Method string

// Deadline resolution methods, in the order they are attempted.
const (
	MethodListPage   Method = "listPage"
	MethodDetailPage Method = "detailPage"
	MethodFallback   Method = "fallback"
)

// DeadlineResolution is an immutable deadline plus the method that produced it.
type DeadlineResolution struct {
	Deadline time.Time `json:"deadline"`
	Method   Method    `json:"method"`
}

// IsZero reports whether the resolution carries no deadline.
func (d DeadlineResolution) IsZero() bool {
	return d.Deadline.IsZero()
}

// CandidateRecord is a parsed listing item before validation and persistence.
type CandidateRecord struct {
	Title           string
	RewardAmount    int
	RawDeadlineText string
	Deadline        *DeadlineResolution
	DetailURL       string
	Source          Source
	Description     string
}

// Severity tags a quality alert.
type Severity string

// Alert severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Alert is one quality finding about a batch or a single record.
type Alert struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Campaign  string    `json:"campaign,omitempty"`
	Source    Source    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// QualityReport summarizes the trustworthiness of one crawled batch.
type QualityReport struct {
	TotalProcessed       int            `json:"totalProcessed"`
	ValidCount           int            `json:"validCount"`
	NullDeadlineCount    int            `json:"nullDeadlineCount"`
	InvalidDeadlineCount int            `json:"invalidDeadlineCount"`
	FallbackCount        int            `json:"fallbackCount"`
	MethodCounts         map[Method]int `json:"extractionMethods"`
	AverageRemainingDays float64        `json:"averageRemainingDays"`
	Score                int            `json:"qualityScore"`
	Alerts               []Alert        `json:"alerts"`
}

// StoredCampaign is the durable row keyed by (SourceSite, CampaignID).
type StoredCampaign struct {
	SourceSite          string
	CampaignID          string
	Title               string
	Description         *string
	RewardPoints        int
	RemainingDays       int
	Deadline            time.Time
	DetailURL           string
	ApplicationsCurrent int
	ApplicationsTotal   int
	ExtractedAt         time.Time
	IsHidden            bool
	IsInvalid           bool
}

// SourceResult is the outcome of one source crawl.
type SourceResult struct {
	Source     Source         `json:"source"`
	Success    bool           `json:"success"`
	Count      int            `json:"count"`
	Duration   time.Duration  `json:"-"`
	DurationMS int64          `json:"duration"`
	Saved      int            `json:"saved"`
	Validation *QualityReport `json:"validation,omitempty"`
	Error      string         `json:"error,omitempty"`
}
