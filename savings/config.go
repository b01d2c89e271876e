package savings

import "time"

// =============================================================================
// CONFIGURATION - Opaque global toggles read per operation
// =============================================================================

// Config exposes the platform toggles the orchestrator reads at the
// start of every operation. Implementations hold no logic; values are
// opaque booleans/integers from the installation's configuration.
type Config interface {
	// InterestPostingAtPeriodEnd posts a period on its final day
	// instead of the first day after.
	InterestPostingAtPeriodEnd() bool

	// RelaxingDaysForPivotDate is the backdating tolerance in days.
	RelaxingDaysForPivotDate() int

	// ReversalTransactionAllowed controls whether reversal records are
	// written for interest adjustments.
	ReversalTransactionAllowed() bool

	// FinancialYearStartMonth anchors annual posting periods.
	FinancialYearStartMonth() time.Month

	// Rounding is the uniform numeric policy for interest math.
	Rounding() Rounding
}

// StaticConfig is a plain value implementation, the default for the
// server and for tests.
type StaticConfig struct {
	PostingAtPeriodEnd bool
	RelaxingDays       int
	PostReversals      bool
	FiscalYearStart    time.Month
	InterestRounding   Rounding
}

// DefaultConfig mirrors a stock installation: posting after period end,
// 3 relaxing days, reversal records on, January fiscal year, 2-place
// half-up rounding.
func DefaultConfig() StaticConfig {
	return StaticConfig{
		RelaxingDays:     3,
		PostReversals:    true,
		FiscalYearStart:  time.January,
		InterestRounding: DefaultRounding(),
	}
}

func (c StaticConfig) InterestPostingAtPeriodEnd() bool    { return c.PostingAtPeriodEnd }
func (c StaticConfig) RelaxingDaysForPivotDate() int       { return c.RelaxingDays }
func (c StaticConfig) ReversalTransactionAllowed() bool    { return c.PostReversals }
func (c StaticConfig) FinancialYearStartMonth() time.Month { return c.FiscalYearStart }
func (c StaticConfig) Rounding() Rounding                  { return c.InterestRounding }
