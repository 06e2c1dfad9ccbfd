package models

import (
	"fmt"
	"time"
)

// DataFormatError marks a malformed upstream payload. The affected
// timeframe's fetch is treated as failed; nothing is cached.
type DataFormatError struct {
	Symbol    string
	Timeframe Timeframe
	Reason    string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("malformed bar data for %s/%s: %s", e.Symbol, e.Timeframe, e.Reason)
}

// InsufficientDataError marks a series too short to analyze. Trend analysis
// degrades to neutral rather than failing.
type InsufficientDataError struct {
	Symbol    string
	Timeframe Timeframe
	BarCount  int
	Required  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s/%s: %d bars, need %d",
		e.Symbol, e.Timeframe, e.BarCount, e.Required)
}

// StaleSignalError rejects a signal older than the staleness window.
type StaleSignalError struct {
	SignalID string
	Age      time.Duration
	MaxAge   time.Duration
}

func (e *StaleSignalError) Error() string {
	return fmt.Sprintf("signal %s is stale: age %s exceeds %s", e.SignalID, e.Age, e.MaxAge)
}

// InvalidSignalError rejects a signal that fails basic validation.
type InvalidSignalError struct {
	Reason string
}

func (e *InvalidSignalError) Error() string {
	return "invalid signal: " + e.Reason
}

// RuleViolationError marks a hard rule-gate failure. A failing rule rejects
// regardless of the weighted score.
type RuleViolationError struct {
	Rule   string
	Detail string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("rule %s violated: %s", e.Rule, e.Detail)
}

// FetchError wraps an upstream market-data failure with its HTTP status.
type FetchError struct {
	Symbol    string
	Timeframe Timeframe
	Status    int
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s failed (status %d): %v", e.Symbol, e.Timeframe, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
