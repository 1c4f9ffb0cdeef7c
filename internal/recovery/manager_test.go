package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

func entry(stage string, category models.ErrorCategory, severity models.Severity) models.DiagnosticEntry {
	return models.DiagnosticEntry{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Error:     "test failure",
		Category:  category,
		Severity:  severity,
	}
}

func TestResumeStage_EmptyLogStartsFromFirstStage(t *testing.T) {
	m := NewManager(nil)
	assert.Equal(t, models.StageScrapeRecords, m.ResumeStage(nil))
}

func TestLastSuccessfulStage(t *testing.T) {
	m := NewManager(nil)

	tests := []struct {
		name     string
		log      []models.DiagnosticEntry
		want     string
		wantOK   bool
		resumeAt string
	}{
		{
			name:     "first stage failed",
			log:      []models.DiagnosticEntry{entry(models.StageScrapeRecords, models.CategoryNetwork, models.SeverityMedium)},
			want:     "",
			wantOK:   false,
			resumeAt: models.StageScrapeRecords,
		},
		{
			name:     "download failed after earlier stages succeeded",
			log:      []models.DiagnosticEntry{entry(models.StageDownloadDocuments, models.CategoryNetwork, models.SeverityMedium)},
			want:     models.StageCourtSearch,
			wantOK:   true,
			resumeAt: models.StageDownloadDocuments,
		},
		{
			name: "earliest failed stage wins regardless of log order",
			log: []models.DiagnosticEntry{
				entry(models.StageGenerateReport, models.CategoryTimeout, models.SeverityMedium),
				entry(models.StageCourtSearch, models.CategoryNetwork, models.SeverityMedium),
			},
			want:     models.StageScrapeRecords,
			wantOK:   true,
			resumeAt: models.StageCourtSearch,
		},
		{
			name:     "final stage failed",
			log:      []models.DiagnosticEntry{entry(models.StageFinalize, models.CategoryDatabase, models.SeverityCritical)},
			want:     models.StageGenerateReport,
			wantOK:   true,
			resumeAt: models.StageFinalize,
		},
		{
			name:     "no pipeline stage in log",
			log:      []models.DiagnosticEntry{entry("cleanup_stale_searches", models.CategoryTimeout, models.SeverityMedium)},
			want:     models.StageFinalize,
			wantOK:   true,
			resumeAt: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.LastSuccessfulStage(tt.log)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.resumeAt, m.ResumeStage(tt.log))
		})
	}
}

func TestResumeStage_StrictlyAfterLastSuccessful(t *testing.T) {
	m := NewManager(nil)

	for _, stage := range models.StepOrder {
		log := []models.DiagnosticEntry{entry(stage, models.CategoryNetwork, models.SeverityMedium)}
		resume := m.ResumeStage(log)
		require.NotEmpty(t, resume)

		last, ok := m.LastSuccessfulStage(log)
		if !ok {
			assert.Equal(t, models.StepOrder[0], resume)
			continue
		}
		assert.Greater(t, models.StageOrdinal(resume), models.StageOrdinal(last),
			"resume %s must follow last successful %s", resume, last)
	}
}

func TestCanResume_TransientFailure(t *testing.T) {
	m := NewManager(nil)
	log := []models.DiagnosticEntry{entry(models.StageScrapeRecords, models.CategoryNetwork, models.SeverityMedium)}

	ok, reason := m.CanResume(models.SearchStatusFailed, log, 0)
	assert.True(t, ok)
	assert.Contains(t, reason, models.StageScrapeRecords)
	assert.Equal(t, models.StageScrapeRecords, m.ResumeStage(log))
}

func TestCanResume_StructuralFailure(t *testing.T) {
	m := NewManager(nil)

	for _, category := range []models.ErrorCategory{models.CategoryScraping, models.CategoryAuthentication} {
		log := []models.DiagnosticEntry{entry(models.StageScrapeRecords, category, models.SeverityHigh)}
		ok, _ := m.CanResume(models.SearchStatusFailed, log, 0)
		assert.False(t, ok, "category %s must veto resumption", category)
	}
}

func TestCanResume_StuckLoop(t *testing.T) {
	m := NewManager(nil)

	// Three consecutive critical entries trail the log; category itself
	// is resumable but the stuck loop vetoes.
	log := []models.DiagnosticEntry{
		entry(models.StageDownloadDocuments, models.CategoryDatabase, models.SeverityCritical),
		entry(models.StageDownloadDocuments, models.CategoryDatabase, models.SeverityCritical),
		entry(models.StageDownloadDocuments, models.CategoryDatabase, models.SeverityCritical),
	}
	ok, _ := m.CanResume(models.SearchStatusFailed, log, 0)
	assert.False(t, ok)

	// A low-severity entry at the tail breaks the streak.
	log = append(log, entry(models.StageDownloadDocuments, models.CategoryRateLimit, models.SeverityLow))
	ok, _ = m.CanResume(models.SearchStatusFailed, log, 0)
	assert.True(t, ok)
}

func TestCanResume_RetryCeiling(t *testing.T) {
	m := NewManager(nil)
	log := []models.DiagnosticEntry{entry(models.StageScrapeRecords, models.CategoryNetwork, models.SeverityMedium)}

	ok, _ := m.CanResume(models.SearchStatusFailed, log, MaxResumeAttempts-1)
	assert.True(t, ok)

	ok, reason := m.CanResume(models.SearchStatusFailed, log, MaxResumeAttempts)
	assert.False(t, ok)
	assert.Contains(t, reason, "maximum retry attempts")
}

func TestCanResume_ConfiguredResumeLimit(t *testing.T) {
	m := NewManager(nil)
	m.SetResumeLimit(2)
	log := []models.DiagnosticEntry{entry(models.StageScrapeRecords, models.CategoryNetwork, models.SeverityMedium)}

	ok, _ := m.CanResume(models.SearchStatusFailed, log, 1)
	assert.True(t, ok)

	ok, reason := m.CanResume(models.SearchStatusFailed, log, 2)
	assert.False(t, ok)
	assert.Contains(t, reason, "maximum retry attempts")

	// A non-positive limit keeps the previous value.
	m.SetResumeLimit(0)
	ok, _ = m.CanResume(models.SearchStatusFailed, log, 1)
	assert.True(t, ok)
}

func TestCanResume_RequiresFailedStatus(t *testing.T) {
	m := NewManager(nil)
	log := []models.DiagnosticEntry{entry(models.StageScrapeRecords, models.CategoryNetwork, models.SeverityMedium)}

	for _, status := range []models.SearchStatus{
		models.SearchStatusPending,
		models.SearchStatusScraping,
		models.SearchStatusCompleted,
		models.SearchStatusCancelled,
	} {
		ok, _ := m.CanResume(status, log, 0)
		assert.False(t, ok, "status %s", status)
	}
}

func TestAnalyze_DominantCategory(t *testing.T) {
	m := NewManager(nil)

	log := []models.DiagnosticEntry{
		entry(models.StageScrapeRecords, models.CategoryNetwork, models.SeverityMedium),
		entry(models.StageScrapeRecords, models.CategoryNetwork, models.SeverityMedium),
		entry(models.StageDownloadDocuments, models.CategoryTimeout, models.SeverityMedium),
	}
	analysis := m.Analyze(log)
	assert.Equal(t, models.CategoryNetwork, analysis.DominantCategory)
	assert.Equal(t, 3, analysis.TotalErrors)
	assert.True(t, analysis.CanRetry)
	require.NotNil(t, analysis.LatestError)
	assert.Equal(t, models.CategoryTimeout, analysis.LatestError.Category)
}

func TestRecoveryOptions(t *testing.T) {
	m := NewManager(nil)
	log := []models.DiagnosticEntry{entry(models.StageDownloadDocuments, models.CategoryNetwork, models.SeverityMedium)}

	opts := m.RecoveryOptions(models.SearchStatusFailed, log, 0, 55)
	assert.True(t, opts.CanRetry)
	assert.Equal(t, models.StageDownloadDocuments, opts.ResumeStage)
	assert.Equal(t, 55, opts.ProgressSaved)

	actions := make(map[string]bool)
	for _, a := range opts.Actions {
		actions[a.Action] = true
	}
	assert.True(t, actions[string(models.ActionRetry)])
	assert.True(t, actions[string(models.ActionPartialComplete)], "progress >= 30 offers partial results")
	assert.True(t, actions["manual_upload"])
	assert.True(t, actions["cancel"])
}

func TestRecoveryOptions_LowProgressHidesPartial(t *testing.T) {
	m := NewManager(nil)
	log := []models.DiagnosticEntry{entry(models.StageScrapeRecords, models.CategoryScraping, models.SeverityHigh)}

	opts := m.RecoveryOptions(models.SearchStatusFailed, log, 0, 10)
	assert.False(t, opts.CanRetry)
	assert.Empty(t, opts.ResumeStage)

	for _, a := range opts.Actions {
		assert.NotEqual(t, string(models.ActionRetry), a.Action)
		assert.NotEqual(t, string(models.ActionPartialComplete), a.Action)
	}
}
