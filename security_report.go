package authcore

import (
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore/internal/security"
)

// LintSeverity ranks a configuration finding.
type LintSeverity = security.Severity

const (
	LintInfo = security.SeverityInfo
	LintWarn = security.SeverityWarn
	LintHigh = security.SeverityHigh
)

// LintWarning is one configuration finding.
type LintWarning = security.Warning

// LintResult is the list returned by Config.Lint, most severe first.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// AtLeast returns the warnings with severity >= floor.
func (r LintResult) AtLeast(floor LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= floor {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns nil when no warning reaches floor, otherwise one error
// listing them.
func (r LintResult) AsError(floor LintSeverity) error {
	hits := r.AtLeast(floor)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, len(hits))
	for i, w := range hits {
		parts[i] = fmt.Sprintf("%s(%s): %s", w.Code, w.Severity, w.Message)
	}
	return fmt.Errorf("authcore: config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that are valid but worth a second look. Unlike
// Validate it never rejects a configuration.
func (c Config) Lint() LintResult {
	return LintResult(security.Lint(reportInput(c, backendNames{})))
}

// SecurityReport summarizes the engine's effective security posture.
type SecurityReport = security.Report

// SecurityReport builds a posture report including which backends are in use.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return security.BuildReport(reportInput(e.config, e.backends))
}

func reportInput(c Config, b backendNames) security.ReportInput {
	limits := make(map[string]int, len(c.RateLimit.Limits))
	for class, limit := range c.RateLimit.Limits {
		limits[string(class)] = limit
	}
	return security.ReportInput{
		AccessTTL:          c.JWT.AccessTTL,
		RefreshTTL:         c.JWT.RefreshTTL,
		ResetTTL:           c.PasswordReset.ResetTTL,
		Leeway:             c.JWT.Leeway,
		SlidingRefresh:     c.Session.SlidingRefresh,
		KeyID:              c.JWT.KeyID,
		VerifyKeyCount:     len(c.JWT.VerifyKeys),
		Limits:             limits,
		AuditEnabled:       c.Audit.Enabled,
		MetricsEnabled:     c.Metrics.Enabled,
		MinPasswordLength:  c.PasswordReset.MinPasswordLength,
		RequireComplexity:  c.PasswordReset.RequireLetterAndDigit,
		RejectCommon:       c.PasswordReset.RejectCommon,
		RevocationBackend:  b.revocation,
		SessionBackend:     b.session,
		RateCounterBackend: b.rate,
	}
}
