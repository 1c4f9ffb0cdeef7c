package recovery

import (
	"fmt"

	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// MaxResumeAttempts is the default ceiling on explicit resumptions of one
// search, independent of any category's own retry budget. Deployments
// override it through SetResumeLimit.
const MaxResumeAttempts = 5

// consecutiveFailureLimit: this many trailing high/critical entries mark a
// stuck loop and veto automatic resumption.
const consecutiveFailureLimit = 3

// partialResultsThreshold: minimum saved progress before accepting partial
// results becomes an offered action.
const partialResultsThreshold = 30

// Suggestions summarizes an error log for recovery decisions.
type Suggestions struct {
	Suggestions         []string                       `json:"suggestions"`
	CanRetry            bool                           `json:"can_retry"`
	TotalErrors         int                            `json:"total_errors"`
	ByCategory          map[models.ErrorCategory]int   `json:"by_category"`
	DominantCategory    models.ErrorCategory           `json:"dominant_category"`
	ConsecutiveFailures int                            `json:"consecutive_failures"`
	LatestError         *models.DiagnosticEntry        `json:"latest_error,omitempty"`
}

// ManualAction is one user-facing recovery choice.
type ManualAction struct {
	Action      string `json:"action"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Options is the aggregate user-facing recovery structure for a failed run.
type Options struct {
	CanRetry      bool           `json:"can_retry"`
	RetryReason   string         `json:"retry_reason"`
	ResumeStage   string         `json:"resume_stage,omitempty"`
	Suggestions   []string       `json:"suggestions"`
	Summary       Suggestions    `json:"error_summary"`
	ProgressSaved int            `json:"progress_saved"`
	Actions       []ManualAction `json:"recovery_actions"`
}

// Manager decides whether and how a failed search can resume. It combines
// the classifier, the fixed stage order, and the job's retry counters.
type Manager struct {
	classifier  *Classifier
	resumeLimit int
}

// NewManager creates a recovery manager.
func NewManager(classifier *Classifier) *Manager {
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Manager{classifier: classifier, resumeLimit: MaxResumeAttempts}
}

// Classifier exposes the underlying classifier.
func (m *Manager) Classifier() *Classifier {
	return m.classifier
}

// SetResumeLimit overrides the ceiling on explicit resumptions. Values
// below one are ignored.
func (m *Manager) SetResumeLimit(limit int) {
	if limit > 0 {
		m.resumeLimit = limit
	}
}

// LastSuccessfulStage returns the stage immediately preceding the earliest
// failed stage in the log, per StepOrder. ok is false when nothing is known
// to have succeeded: the log is empty, or the first stage failed.
func (m *Manager) LastSuccessfulStage(errorLog []models.DiagnosticEntry) (string, bool) {
	if len(errorLog) == 0 {
		return "", false
	}

	failed := make(map[string]bool, len(errorLog))
	for _, entry := range errorLog {
		failed[entry.Stage] = true
	}

	for i, stage := range models.StepOrder {
		if failed[stage] {
			if i == 0 {
				return "", false
			}
			return models.StepOrder[i-1], true
		}
	}

	// Errors recorded, but none against a pipeline stage (e.g. cleanup).
	return models.StepOrder[len(models.StepOrder)-1], true
}

// ResumeStage returns the stage to resume from: the one immediately after
// the last successful stage, the first stage if nothing succeeded, or ""
// when the whole chain already completed.
func (m *Manager) ResumeStage(errorLog []models.DiagnosticEntry) string {
	last, ok := m.LastSuccessfulStage(errorLog)
	if !ok {
		return models.StepOrder[0]
	}

	idx := models.StageOrdinal(last)
	if idx >= 0 && idx < len(models.StepOrder)-1 {
		return models.StepOrder[idx+1]
	}
	return ""
}

// Analyze builds recovery suggestions from an error log. CanRetry is false
// when the dominant category is structural (non-resumable) or when the log
// trails with a stuck loop of high/critical failures.
func (m *Manager) Analyze(errorLog []models.DiagnosticEntry) Suggestions {
	if len(errorLog) == 0 {
		return Suggestions{CanRetry: true, ByCategory: map[models.ErrorCategory]int{}}
	}

	byCategory := make(map[models.ErrorCategory]int)
	for _, entry := range errorLog {
		byCategory[entry.Category]++
	}

	dominant := errorLog[0].Category
	for category, count := range byCategory {
		if count > byCategory[dominant] {
			dominant = category
		}
	}

	consecutive := 0
	for i := len(errorLog) - 1; i >= 0; i-- {
		sev := errorLog[i].Severity
		if sev == models.SeverityHigh || sev == models.SeverityCritical {
			consecutive++
		} else {
			break
		}
	}

	suggestions := suggestionsFor(dominant)
	canRetry := m.classifier.Policy(dominant).Resumable

	if consecutive >= consecutiveFailureLimit {
		canRetry = false
		suggestions = append([]string{"Multiple consecutive failures detected - manual review recommended"}, suggestions...)
	}

	latest := errorLog[len(errorLog)-1]
	return Suggestions{
		Suggestions:         suggestions,
		CanRetry:            canRetry,
		TotalErrors:         len(errorLog),
		ByCategory:          byCategory,
		DominantCategory:    dominant,
		ConsecutiveFailures: consecutive,
		LatestError:         &latest,
	}
}

func suggestionsFor(category models.ErrorCategory) []string {
	switch category {
	case models.CategoryNetwork:
		return []string{
			"Check network connectivity to county recorder websites",
			"The county website may be temporarily down",
		}
	case models.CategoryRateLimit:
		return []string{
			"Wait a few minutes before retrying",
			"Consider running during off-peak hours",
		}
	case models.CategoryScraping:
		return []string{
			"The county website structure may have changed",
			"Try using manual document upload as an alternative",
		}
	case models.CategoryAuthentication:
		return []string{
			"County website credentials may need to be updated",
			"Contact an administrator to verify account access",
		}
	case models.CategoryParsing:
		return []string{
			"Some documents could not be processed automatically",
			"Consider uploading problematic documents manually",
		}
	case models.CategoryTimeout:
		return []string{
			"Operation taking longer than expected",
			"Try retrying during off-peak hours",
		}
	default:
		return []string{
			"Review the error details for more information",
			"Contact support if the issue persists",
		}
	}
}

// CanResume reports whether a failed search is still automatically
// resumable, with a human-readable reason.
func (m *Manager) CanResume(status models.SearchStatus, errorLog []models.DiagnosticEntry, retryCount int) (bool, string) {
	if status != models.SearchStatusFailed {
		return false, "search is not in a failed state"
	}

	analysis := m.Analyze(errorLog)
	if !analysis.CanRetry {
		return false, "too many failures or non-recoverable error"
	}

	if retryCount >= m.resumeLimit {
		return false, "maximum retry attempts exceeded"
	}

	resume := m.ResumeStage(errorLog)
	if resume == "" {
		return false, "no recoverable stage found"
	}

	return true, fmt.Sprintf("can resume from stage: %s", resume)
}

// RecoveryOptions aggregates everything the API layer shows a user for a
// failed search: resumability, suggestions, and the manual action menu.
func (m *Manager) RecoveryOptions(status models.SearchStatus, errorLog []models.DiagnosticEntry, retryCount, progressPercent int) Options {
	canResume, reason := m.CanResume(status, errorLog, retryCount)
	analysis := m.Analyze(errorLog)

	options := Options{
		CanRetry:      canResume,
		RetryReason:   reason,
		Suggestions:   analysis.Suggestions,
		Summary:       analysis,
		ProgressSaved: progressPercent,
	}
	if canResume {
		options.ResumeStage = m.ResumeStage(errorLog)
		options.Actions = append(options.Actions, ManualAction{
			Action:      string(models.ActionRetry),
			Label:       "Retry Search",
			Description: fmt.Sprintf("Resume from %s", options.ResumeStage),
		})
	}

	if progressPercent >= partialResultsThreshold {
		options.Actions = append(options.Actions, ManualAction{
			Action:      string(models.ActionPartialComplete),
			Label:       "Save Partial Results",
			Description: "Mark as complete with available data",
		})
	}

	options.Actions = append(options.Actions,
		ManualAction{
			Action:      "manual_upload",
			Label:       "Manual Document Upload",
			Description: "Upload documents manually instead of scraping",
		},
		ManualAction{
			Action:      "cancel",
			Label:       "Cancel Search",
			Description: "Cancel and delete this search",
		},
	)

	return options
}
