package recovery

import (
	"regexp"
	"time"

	"github.com/DataisKing1/title-search-app-sub000/internal/models"
)

// CategoryPolicy is the static policy attached to one error category.
type CategoryPolicy struct {
	Severity        models.Severity
	IsTransient     bool
	RetryDelay      time.Duration // base delay before the first retry
	MaxRetries      int
	Resumable       bool // structural categories veto automatic resumption
	RecoveryActions []models.RecoveryAction
	UserMessage     string
}

// Diagnosis is the merged result of classifying one error in context.
type Diagnosis struct {
	Category          models.ErrorCategory
	Severity          models.Severity
	IsTransient       bool
	UserMessage       string
	TechnicalDetails  string
	RecoveryActions   []models.RecoveryAction
	RecommendedAction models.RecoveryAction
	RetryDelay        time.Duration
	RemainingRetries  int
}

// categoryRule holds the ordered pattern set for one category. Rules are
// evaluated in declaration order; the first matching category wins.
type categoryRule struct {
	category models.ErrorCategory
	patterns []*regexp.Regexp
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile("(?i)"+p))
	}
	return compiled
}

var categoryRules = []categoryRule{
	{models.CategoryNetwork, compilePatterns(
		`connection refused`,
		`connection reset`,
		`connection timed out`,
		`network unreachable`,
		`name resolution`,
		`dns`,
		`socket`,
		`ERR_CONNECTION`,
		`net::`,
	)},
	{models.CategoryTimeout, compilePatterns(
		`timeout`,
		`timed out`,
		`took too long`,
		`deadline exceeded`,
	)},
	{models.CategoryRateLimit, compilePatterns(
		`rate limit`,
		`too many requests`,
		`429`,
		`throttl`,
		`quota exceeded`,
	)},
	{models.CategoryAuthentication, compilePatterns(
		`unauthorized`,
		`401`,
		`forbidden`,
		`403`,
		`login required`,
		`session expired`,
		`authentication failed`,
		`access denied`,
	)},
	{models.CategoryParsing, compilePatterns(
		`parse error`,
		`invalid json`,
		`malformed`,
		`unexpected token`,
		`html parsing`,
		`element not found`,
		`selector`,
	)},
	{models.CategoryScraping, compilePatterns(
		`page not found`,
		`404`,
		`no results table`,
		`website unavailable`,
		`under maintenance`,
		`captcha`,
		`bot detection`,
		`site structure changed`,
	)},
	{models.CategoryDatabase, compilePatterns(
		`database`,
		`badger`,
		`transaction conflict`,
		`deadlock`,
		`integrity error`,
		`constraint`,
	)},
	{models.CategoryStorage, compilePatterns(
		`disk space`,
		`file not found`,
		`permission denied`,
		`upload failed`,
		`no such file`,
	)},
	{models.CategoryExternalService, compilePatterns(
		`anthropic`,
		`api key`,
		`model not found`,
		`context length`,
		`content policy`,
		`overloaded`,
	)},
	{models.CategoryValidation, compilePatterns(
		`validation`,
		`invalid`,
		`required field`,
		`out of range`,
	)},
	{models.CategoryResource, compilePatterns(
		`out of memory`,
		`memory`,
		`oom`,
		`resource exhausted`,
		`cannot allocate`,
	)},
}

var categoryPolicies = map[models.ErrorCategory]CategoryPolicy{
	models.CategoryNetwork: {
		Severity:        models.SeverityMedium,
		IsTransient:     true,
		RetryDelay:      30 * time.Second,
		MaxRetries:      3,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionRetryWithDelay, models.ActionRetryAlternate},
		UserMessage:     "Network connection issue. The system will automatically retry.",
	},
	models.CategoryTimeout: {
		Severity:        models.SeverityMedium,
		IsTransient:     true,
		RetryDelay:      60 * time.Second,
		MaxRetries:      2,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionRetryWithDelay, models.ActionSkipStep},
		UserMessage:     "The operation timed out. Retrying with extended timeout.",
	},
	models.CategoryRateLimit: {
		Severity:        models.SeverityLow,
		IsTransient:     true,
		RetryDelay:      5 * time.Minute,
		MaxRetries:      3,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionRetryWithDelay},
		UserMessage:     "Rate limited by the county website. Will retry after a delay.",
	},
	models.CategoryAuthentication: {
		Severity:        models.SeverityHigh,
		IsTransient:     false,
		RetryDelay:      0,
		MaxRetries:      1,
		Resumable:       false,
		RecoveryActions: []models.RecoveryAction{models.ActionManualReview, models.ActionEscalate},
		UserMessage:     "Authentication issue with external service. May require credential update.",
	},
	models.CategoryParsing: {
		Severity:        models.SeverityHigh,
		IsTransient:     false,
		RetryDelay:      0,
		MaxRetries:      1,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionSkipStep, models.ActionPartialComplete, models.ActionManualReview},
		UserMessage:     "Could not parse some data. Results may be incomplete.",
	},
	models.CategoryScraping: {
		Severity:        models.SeverityHigh,
		IsTransient:     false,
		RetryDelay:      time.Hour,
		MaxRetries:      1,
		Resumable:       false,
		RecoveryActions: []models.RecoveryAction{models.ActionRetryAlternate, models.ActionManualReview},
		UserMessage:     "County website structure may have changed. Attempting alternative method.",
	},
	models.CategoryDatabase: {
		Severity:        models.SeverityCritical,
		IsTransient:     true,
		RetryDelay:      5 * time.Second,
		MaxRetries:      5,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionRetry, models.ActionEscalate},
		UserMessage:     "Database issue. Retrying automatically.",
	},
	models.CategoryStorage: {
		Severity:        models.SeverityHigh,
		IsTransient:     false,
		RetryDelay:      60 * time.Second,
		MaxRetries:      2,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionRetry, models.ActionEscalate},
		UserMessage:     "File storage issue. Retrying write.",
	},
	models.CategoryExternalService: {
		Severity:        models.SeverityMedium,
		IsTransient:     true,
		RetryDelay:      30 * time.Second,
		MaxRetries:      3,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionRetryWithDelay, models.ActionSkipStep},
		UserMessage:     "AI analysis service temporarily unavailable. Retrying.",
	},
	models.CategoryValidation: {
		Severity:        models.SeverityMedium,
		IsTransient:     false,
		RetryDelay:      0,
		MaxRetries:      0,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionSkipStep, models.ActionManualReview},
		UserMessage:     "Some data did not pass validation. Review may be required.",
	},
	models.CategoryResource: {
		Severity:        models.SeverityCritical,
		IsTransient:     true,
		RetryDelay:      5 * time.Minute,
		MaxRetries:      1,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionRetryWithDelay, models.ActionEscalate},
		UserMessage:     "System resource constraint. Will retry after resources free up.",
	},
	models.CategoryUnknown: {
		Severity:        models.SeverityHigh,
		IsTransient:     false,
		RetryDelay:      60 * time.Second,
		MaxRetries:      1,
		Resumable:       true,
		RecoveryActions: []models.RecoveryAction{models.ActionRetry, models.ActionManualReview},
		UserMessage:     "An unexpected error occurred. Our team has been notified.",
	},
}

// Classifier maps raw error text to a category and merges the category's
// static policy with run context. It is pure and safe for concurrent use.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// CategorizeError maps free-text error output to a category. Rules run in
// a fixed order and the first matching category wins; unmatched text is
// CategoryUnknown.
func (c *Classifier) CategorizeError(errText string) models.ErrorCategory {
	for _, rule := range categoryRules {
		for _, pattern := range rule.patterns {
			if pattern.MatchString(errText) {
				return rule.category
			}
		}
	}
	return models.CategoryUnknown
}

// Policy returns the static policy for a category.
func (c *Classifier) Policy(category models.ErrorCategory) CategoryPolicy {
	policy, ok := categoryPolicies[category]
	if !ok {
		return categoryPolicies[models.CategoryUnknown]
	}
	return policy
}

// Diagnose classifies an error and merges the category policy with the
// current retry count. Once remaining retries hit zero the recovery
// actions collapse to manual review or abort regardless of category.
func (c *Classifier) Diagnose(errText, stage string, retryCount int) Diagnosis {
	category := c.CategorizeError(errText)
	policy := c.Policy(category)

	remaining := policy.MaxRetries - retryCount
	if remaining < 0 {
		remaining = 0
	}

	actions := policy.RecoveryActions
	if remaining == 0 {
		actions = []models.RecoveryAction{models.ActionManualReview, models.ActionAbort}
	}

	recommended := models.ActionRetry
	if len(actions) > 0 {
		recommended = actions[0]
	}

	return Diagnosis{
		Category:          category,
		Severity:          policy.Severity,
		IsTransient:       policy.IsTransient,
		UserMessage:       policy.UserMessage,
		TechnicalDetails:  "stage: " + stage + ", error: " + errText,
		RecoveryActions:   actions,
		RecommendedAction: recommended,
		RetryDelay:        policy.RetryDelay,
		RemainingRetries:  remaining,
	}
}

// ShouldRetry decides whether a failed operation should be retried and
// with what delay. The delay grows exponentially: base * 2^retryCount.
// Returns false for non-transient categories and once retryCount reaches
// the lower of the caller's ceiling and the category's own.
func (c *Classifier) ShouldRetry(errText string, retryCount, maxRetries int) (bool, time.Duration) {
	policy := c.Policy(c.CategorizeError(errText))

	if !policy.IsTransient {
		return false, 0
	}

	ceiling := maxRetries
	if policy.MaxRetries < ceiling {
		ceiling = policy.MaxRetries
	}
	if retryCount >= ceiling {
		return false, 0
	}

	return true, policy.RetryDelay << uint(retryCount)
}

// NewDiagnosticEntry builds the immutable error-log record for one failure.
func (c *Classifier) NewDiagnosticEntry(errText, stage string) models.DiagnosticEntry {
	d := c.Diagnose(errText, stage, 0)
	return models.DiagnosticEntry{
		Timestamp:         time.Now().UTC(),
		Stage:             stage,
		Error:             errText,
		Category:          d.Category,
		Severity:          d.Severity,
		IsTransient:       d.IsTransient,
		RecommendedAction: d.RecommendedAction,
	}
}
