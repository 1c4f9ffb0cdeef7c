package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// canonicalErrors holds one representative error string per category. Each
// must map to exactly its own category and no other.
var canonicalErrors = map[models.ErrorCategory]string{
	models.CategoryNetwork:         "dial tcp 10.0.0.5:443: connection refused",
	models.CategoryTimeout:         "context deadline exceeded",
	models.CategoryRateLimit:       "server responded with too many requests",
	models.CategoryAuthentication:  "session expired, please log in again",
	models.CategoryParsing:         "unexpected token '<' at position 0",
	models.CategoryScraping:        "bot detection triggered on results page",
	models.CategoryDatabase:        "transaction conflict, please retry",
	models.CategoryStorage:         "write failed: insufficient disk space",
	models.CategoryExternalService: "request rejected by content policy",
	models.CategoryValidation:      "required field grantor is missing",
	models.CategoryResource:        "process killed: out of memory",
}

func TestCategorizeError_CanonicalExamples(t *testing.T) {
	c := NewClassifier()

	for want, errText := range canonicalErrors {
		got := c.CategorizeError(errText)
		assert.Equal(t, want, got, "error %q", errText)
	}
}

func TestCategorizeError_NoCanonicalCollisions(t *testing.T) {
	c := NewClassifier()

	// Every canonical example must match its own category alone; a
	// collision means two categories claim the same string.
	seen := make(map[models.ErrorCategory]string)
	for category, errText := range canonicalErrors {
		got := c.CategorizeError(errText)
		if prev, dup := seen[got]; dup {
			t.Fatalf("canonical examples collide on %s: %q and %q", got, prev, errText)
		}
		seen[got] = errText
		require.Equal(t, category, got)
	}
}

func TestCategorizeError_Unknown(t *testing.T) {
	c := NewClassifier()
	assert.Equal(t, models.CategoryUnknown, c.CategorizeError("flux capacitor misaligned"))
	assert.Equal(t, models.CategoryUnknown, c.CategorizeError(""))
}

func TestCategorizeError_FirstMatchWins(t *testing.T) {
	c := NewClassifier()

	// "connection timed out" matches both network and timeout patterns;
	// network is evaluated first.
	assert.Equal(t, models.CategoryNetwork, c.CategorizeError("connection timed out"))

	// "element not found" belongs to parsing, which precedes scraping.
	assert.Equal(t, models.CategoryParsing, c.CategorizeError("element not found: #searchResults"))
}

func TestShouldRetry_ExponentialBackoff(t *testing.T) {
	c := NewClassifier()
	errText := canonicalErrors[models.CategoryNetwork] // transient, base 30s, max 3

	tests := []struct {
		retryCount int
		wantRetry  bool
		wantDelay  time.Duration
	}{
		{0, true, 30 * time.Second},
		{1, true, 60 * time.Second},
		{2, true, 120 * time.Second},
		{3, false, 0},
		{4, false, 0},
	}

	for _, tt := range tests {
		retry, delay := c.ShouldRetry(errText, tt.retryCount, 10)
		assert.Equal(t, tt.wantRetry, retry, "retryCount=%d", tt.retryCount)
		assert.Equal(t, tt.wantDelay, delay, "retryCount=%d", tt.retryCount)
	}
}

func TestShouldRetry_DelayDoublesBelowCeiling(t *testing.T) {
	c := NewClassifier()

	for category, errText := range canonicalErrors {
		policy := c.Policy(category)
		if !policy.IsTransient {
			continue
		}
		for n := 0; n+1 < policy.MaxRetries; n++ {
			_, delayN := c.ShouldRetry(errText, n, 100)
			_, delayNext := c.ShouldRetry(errText, n+1, 100)
			assert.Equal(t, delayN*2, delayNext, "%s at n=%d", category, n)
		}
	}
}

func TestShouldRetry_MonotonicallyNonIncreasing(t *testing.T) {
	c := NewClassifier()

	// Once ShouldRetry is false for some retryCount it stays false for
	// every greater count.
	for _, errText := range canonicalErrors {
		deniedAt := -1
		for n := 0; n < 12; n++ {
			retry, _ := c.ShouldRetry(errText, n, 6)
			if !retry && deniedAt == -1 {
				deniedAt = n
			}
			if deniedAt != -1 {
				assert.False(t, retry, "error %q permissive again at n=%d after denial at n=%d", errText, n, deniedAt)
			}
		}
	}
}

func TestShouldRetry_NonTransientNeverRetries(t *testing.T) {
	c := NewClassifier()

	retry, delay := c.ShouldRetry(canonicalErrors[models.CategoryAuthentication], 0, 10)
	assert.False(t, retry)
	assert.Zero(t, delay)

	retry, _ = c.ShouldRetry(canonicalErrors[models.CategoryScraping], 0, 10)
	assert.False(t, retry)
}

func TestShouldRetry_CallerCeilingApplies(t *testing.T) {
	c := NewClassifier()

	// Database allows 5 retries, but the caller only allows 1.
	errText := canonicalErrors[models.CategoryDatabase]
	retry, _ := c.ShouldRetry(errText, 0, 1)
	assert.True(t, retry)
	retry, _ = c.ShouldRetry(errText, 1, 1)
	assert.False(t, retry)
}

func TestDiagnose_MergesContext(t *testing.T) {
	c := NewClassifier()
	errText := canonicalErrors[models.CategoryNetwork]

	d := c.Diagnose(errText, models.StageScrapeRecords, 1)
	require.Equal(t, models.CategoryNetwork, d.Category)
	assert.Equal(t, models.SeverityMedium, d.Severity)
	assert.True(t, d.IsTransient)
	assert.Equal(t, 2, d.RemainingRetries)
	assert.Equal(t, models.ActionRetryWithDelay, d.RecommendedAction)
	assert.Contains(t, d.TechnicalDetails, models.StageScrapeRecords)
}

func TestDiagnose_ExhaustedRetriesCollapseActions(t *testing.T) {
	c := NewClassifier()

	// Network allows 3 retries. At retryCount 3 the actions collapse to
	// manual review or abort regardless of category.
	d := c.Diagnose(canonicalErrors[models.CategoryNetwork], models.StageScrapeRecords, 3)
	assert.Zero(t, d.RemainingRetries)
	assert.Equal(t, []models.RecoveryAction{models.ActionManualReview, models.ActionAbort}, d.RecoveryActions)
	assert.Equal(t, models.ActionManualReview, d.RecommendedAction)
}

func TestNewDiagnosticEntry(t *testing.T) {
	c := NewClassifier()

	entry := c.NewDiagnosticEntry("connection refused", models.StageScrapeRecords)
	assert.Equal(t, models.StageScrapeRecords, entry.Stage)
	assert.Equal(t, models.CategoryNetwork, entry.Category)
	assert.Equal(t, models.SeverityMedium, entry.Severity)
	assert.True(t, entry.IsTransient)
	assert.False(t, entry.Timestamp.IsZero())
}
