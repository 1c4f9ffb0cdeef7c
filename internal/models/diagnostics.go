package models

import "time"

// ErrorCategory is the closed taxonomy for classified failures.
type ErrorCategory string

const (
	CategoryNetwork         ErrorCategory = "network"
	CategoryTimeout         ErrorCategory = "timeout"
	CategoryRateLimit       ErrorCategory = "rate_limit"
	CategoryAuthentication  ErrorCategory = "authentication"
	CategoryParsing         ErrorCategory = "parsing"
	CategoryScraping        ErrorCategory = "scraping"
	CategoryDatabase        ErrorCategory = "database"
	CategoryStorage         ErrorCategory = "storage"
	CategoryExternalService ErrorCategory = "external_service"
	CategoryValidation      ErrorCategory = "validation"
	CategoryResource        ErrorCategory = "resource"
	CategoryUnknown         ErrorCategory = "unknown"
)

// Severity grades how serious a classified failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RecoveryAction is one remediation a failed run may take.
type RecoveryAction string

const (
	ActionRetry           RecoveryAction = "retry"
	ActionRetryWithDelay  RecoveryAction = "retry_delay"
	ActionRetryAlternate  RecoveryAction = "retry_alt"
	ActionManualReview    RecoveryAction = "manual"
	ActionSkipStep        RecoveryAction = "skip"
	ActionPartialComplete RecoveryAction = "partial"
	ActionEscalate        RecoveryAction = "escalate"
	ActionAbort           RecoveryAction = "abort"
)

// DiagnosticEntry is one immutable record of an observed failure. The
// ordered sequence on SearchJob.ErrorLog is the sole input to
// failure-history reconstruction.
type DiagnosticEntry struct {
	Timestamp         time.Time      `json:"timestamp"`
	Stage             string         `json:"stage"`
	Error             string         `json:"error"`
	Category          ErrorCategory  `json:"category"`
	Severity          Severity       `json:"severity"`
	IsTransient       bool           `json:"is_transient"`
	RecommendedAction RecoveryAction `json:"recommended_action"`
}
