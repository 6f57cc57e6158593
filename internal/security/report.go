package security

import (
	"sort"
	"time"
)

// Severity ranks lint findings.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityWarn:
		return "warn"
	default:
		return "info"
	}
}

// Warning is one lint finding about a configuration.
type Warning struct {
	Code     string
	Severity Severity
	Message  string
}

type Report struct {
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	ResetTTL           time.Duration
	Leeway             time.Duration
	SlidingRefresh     bool
	KeyRotation        bool
	RateLimitedClasses []string
	AuditEnabled       bool
	MetricsEnabled     bool
	Warnings           []Warning
}

type ReportInput struct {
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	ResetTTL           time.Duration
	Leeway             time.Duration
	SlidingRefresh     bool
	KeyID              string
	VerifyKeyCount     int
	Limits             map[string]int
	AuditEnabled       bool
	MetricsEnabled     bool
	MinPasswordLength  int
	RequireComplexity  bool
	RejectCommon       bool
	RevocationBackend  string
	SessionBackend     string
	RateCounterBackend string
}

const (
	maxAccessTTL  = time.Hour
	maxRefreshTTL = 30 * 24 * time.Hour
	maxResetTTL   = 24 * time.Hour
	maxLeeway     = 30 * time.Second
)

// BuildReport summarizes a configuration and lists what an operator should
// look at before running it in production.
func BuildReport(input ReportInput) Report {
	classes := make([]string, 0, len(input.Limits))
	for class, limit := range input.Limits {
		if limit > 0 {
			classes = append(classes, class)
		}
	}
	sort.Strings(classes)

	return Report{
		AccessTTL:          input.AccessTTL,
		RefreshTTL:         input.RefreshTTL,
		ResetTTL:           input.ResetTTL,
		Leeway:             input.Leeway,
		SlidingRefresh:     input.SlidingRefresh,
		KeyRotation:        input.KeyID != "" && input.VerifyKeyCount > 0,
		RateLimitedClasses: classes,
		AuditEnabled:       input.AuditEnabled,
		MetricsEnabled:     input.MetricsEnabled,
		Warnings:           Lint(input),
	}
}

// Lint returns findings ordered by descending severity, then code.
func Lint(input ReportInput) []Warning {
	var ws []Warning
	add := func(code string, sev Severity, msg string) {
		ws = append(ws, Warning{Code: code, Severity: sev, Message: msg})
	}

	if input.AccessTTL > maxAccessTTL {
		add("access_ttl_long", SeverityWarn, "access tokens live longer than one hour")
	}
	if input.RefreshTTL > maxRefreshTTL {
		add("refresh_ttl_long", SeverityWarn, "refresh tokens live longer than 30 days")
	}
	if input.ResetTTL > maxResetTTL {
		add("reset_ttl_long", SeverityHigh, "reset tokens live longer than 24 hours")
	}
	if input.Leeway > maxLeeway {
		add("leeway_large", SeverityWarn, "clock leeway above 30s extends every token lifetime")
	}
	if input.SlidingRefresh {
		add("sliding_refresh", SeverityInfo, "sessions can be kept alive indefinitely by refreshing")
	}

	active := 0
	for _, limit := range input.Limits {
		if limit > 0 {
			active++
		}
	}
	if active == 0 {
		add("rate_limits_disabled", SeverityHigh, "no operation class is rate limited")
	} else {
		for _, class := range []string{"login", "password_reset"} {
			if input.Limits[class] <= 0 {
				add(class+"_unlimited", SeverityWarn, class+" requests are not rate limited")
			}
		}
	}

	if input.MinPasswordLength < 8 {
		add("password_min_length_low", SeverityWarn, "minimum password length is below 8")
	}
	if !input.RequireComplexity && !input.RejectCommon {
		add("password_policy_weak", SeverityWarn, "neither complexity nor common password checks are enabled")
	}
	if !input.AuditEnabled {
		add("audit_disabled", SeverityInfo, "security events are not audited")
	}
	if input.RevocationBackend == "memory" || input.SessionBackend == "memory" {
		add("memory_backend", SeverityInfo, "state is process local and lost on restart")
	}
	if input.RateCounterBackend == "memory" {
		add("memory_rate_counter", SeverityInfo, "rate limits are enforced per process")
	}

	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Severity != ws[j].Severity {
			return ws[i].Severity > ws[j].Severity
		}
		return ws[i].Code < ws[j].Code
	})
	return ws
}
