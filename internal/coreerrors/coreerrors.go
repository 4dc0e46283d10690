// Package coreerrors defines the closed error taxonomy shared across
// the scoring pipeline. Callers use errors.Is/errors.As
// against the sentinel values below rather than string matching.
package coreerrors

import "fmt"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err...) to attach
// context while keeping errors.Is matching intact.
var (
	// ErrTransientProvider marks a provider failure that is expected to
	// clear on retry (network blip, 5xx, timeout).
	ErrTransientProvider = fmt.Errorf("provider: transient failure")

	// ErrRateLimited marks a provider response indicating the caller
	// should back off (HTTP 429 or provider-specific quota signal).
	ErrRateLimited = fmt.Errorf("provider: rate limited")

	// ErrAuthFailure marks a provider credential/authorization failure.
	// Not retried — surfaced immediately.
	ErrAuthFailure = fmt.Errorf("provider: auth failure")

	// ErrQuotaExhausted marks that the primary provider's paid plan is
	// out of calls. Distinguishable from ErrRateLimited so callers can
	// switch to the fallback instead of backing off.
	ErrQuotaExhausted = fmt.Errorf("provider: plan quota exhausted")

	// ErrInsufficientData marks that gating or scoring could not
	// proceed because the asset lacks the minimum required bar history.
	ErrInsufficientData = fmt.Errorf("insufficient data")

	// ErrIneligible marks an asset that failed data-quality gating and
	// must not be scored this cycle.
	ErrIneligible = fmt.Errorf("asset ineligible")

	// ErrQuotaExceeded marks that a user's daily on-demand scoring
	// budget has been exhausted.
	ErrQuotaExceeded = fmt.Errorf("quota exceeded")

	// ErrAssetNotFound marks a lookup for an asset ID the store has no
	// record of.
	ErrAssetNotFound = fmt.Errorf("asset not found")

	// ErrPublishConflict marks that a staged run could not be published
	// because a newer run for the same scope already was.
	ErrPublishConflict = fmt.Errorf("publish conflict")
)

// ProviderError wraps a provider-originated failure with the provider
// name and the asset/request it was serving, preserving the sentinel
// via Unwrap so errors.Is(err, ErrTransientProvider) keeps working.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// GatingError reports why an asset failed eligibility gating, carrying
// the machine-readable reason code from domain.GatingStatus.
type GatingError struct {
	AssetID string
	Reason  string
}

func (e *GatingError) Error() string {
	return fmt.Sprintf("asset %s ineligible: %s", e.AssetID, e.Reason)
}

func (e *GatingError) Unwrap() error {
	return ErrIneligible
}

// QuotaError reports which user/day exhausted their on-demand budget.
type QuotaError struct {
	UserID string
	Date   string
	Limit  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("user %s exceeded daily quota (%d) on %s", e.UserID, e.Limit, e.Date)
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}
