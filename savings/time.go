package savings

import "time"

// =============================================================================
// TIME POINT - Day-granularity dates (transaction and posting dates)
// =============================================================================

// TimePoint is a calendar day in UTC. All transaction dates, posting
// boundaries, and pivot windows are day-granular.
type TimePoint struct {
	Time time.Time
}

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint { return DateOf(time.Now().UTC()) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Comparison
func (tp TimePoint) Before(o TimePoint) bool        { return tp.normalize().Before(o.normalize()) }
func (tp TimePoint) After(o TimePoint) bool         { return tp.normalize().After(o.normalize()) }
func (tp TimePoint) Equal(o TimePoint) bool         { return tp.normalize().Equal(o.normalize()) }
func (tp TimePoint) BeforeOrEqual(o TimePoint) bool { return !tp.After(o) }
func (tp TimePoint) AfterOrEqual(o TimePoint) bool  { return !tp.Before(o) }
func (tp TimePoint) IsZero() bool                   { return tp.Time.IsZero() }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, n, 0)} }
func (tp TimePoint) AddYears(n int) TimePoint  { return TimePoint{Time: tp.normalize().AddDate(n, 0, 0)} }

func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }

func (tp TimePoint) String() string { return tp.normalize().Format("2006-01-02") }

func ParseTimePoint(s string) (TimePoint, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return TimePoint{}, err
	}
	return DateOf(t), nil
}

func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// POSTING PERIODS - Boundaries interest is finalized against
// =============================================================================

// Period is an inclusive [Start, End] day range.
type Period struct {
	Start TimePoint
	End   TimePoint
}

func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PostingPeriodType defines how interest-posting periods are cut.
type PostingPeriodType string

const (
	PostMonthly   PostingPeriodType = "monthly"
	PostQuarterly PostingPeriodType = "quarterly"
	PostAnnually  PostingPeriodType = "annually" // fiscal year, see fiscalYearStart
)

// PeriodFor returns the posting period containing date. Annual periods
// start at the configured fiscal-year month; monthly and quarterly
// periods are calendar-aligned.
func (pt PostingPeriodType) PeriodFor(date TimePoint, fiscalYearStart time.Month) Period {
	switch pt {
	case PostAnnually:
		start := NewTimePoint(date.Year(), fiscalYearStart, 1)
		if date.Before(start) {
			start = start.AddYears(-1)
		}
		return Period{Start: start, End: start.AddYears(1).AddDays(-1)}

	case PostQuarterly:
		m := date.Month()
		qStart := time.Month(((int(m)-1)/3)*3 + 1)
		start := NewTimePoint(date.Year(), qStart, 1)
		return Period{Start: start, End: start.AddMonths(3).AddDays(-1)}

	default: // monthly
		start := NewTimePoint(date.Year(), date.Month(), 1)
		return Period{Start: start, End: start.AddMonths(1).AddDays(-1)}
	}
}

// NextPeriod returns the posting period immediately after p.
func (pt PostingPeriodType) NextPeriod(p Period, fiscalYearStart time.Month) Period {
	return pt.PeriodFor(p.End.AddDays(1), fiscalYearStart)
}
