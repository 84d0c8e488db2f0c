package harvest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/search-harvester/internal/ledger"
)

// DayLayout is the date format used in queries, ledger rows, and file names.
const DayLayout = "2006-01-02"

// Level identifies how far a creation-date range has been subdivided.
type Level int

// Split levels, coarsest first. LevelMonthGroup is the floor.
const (
	LevelOpen Level = iota
	LevelYear
	LevelMonthGroup
)

func (l Level) String() string {
	switch l {
	case LevelOpen:
		return "open"
	case LevelYear:
		return "year"
	case LevelMonthGroup:
		return "month_group"
	default:
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
}

// DateRange is a creation-date scope. To is inclusive; a zero To means the
// range is open above.
type DateRange struct {
	From  time.Time
	To    time.Time
	Level Level
}

// OpenRange returns the unbounded range starting at from.
func OpenRange(from time.Time) DateRange {
	return DateRange{From: day(from), Level: LevelOpen}
}

// YearRange returns the full calendar year.
func YearRange(year int) DateRange {
	return DateRange{
		From:  date(year, time.January, 1),
		To:    date(year, time.December, 31),
		Level: LevelYear,
	}
}

// Open reports whether the range has no upper bound.
func (r DateRange) Open() bool {
	return r.To.IsZero()
}

// Qualifier renders the range as a search qualifier value.
func (r DateRange) Qualifier() string {
	if r.Open() {
		return ">=" + r.From.Format(DayLayout)
	}
	return r.From.Format(DayLayout) + ".." + r.To.Format(DayLayout)
}

func (r DateRange) String() string {
	return r.Qualifier()
}

// MonthGroup is a calendar span inside one year, such as Feb 1 to Mar 31.
type MonthGroup struct {
	StartMonth time.Month
	StartDay   int
	EndMonth   time.Month
	EndDay     int
}

// DefaultMonthGroups buckets months so each group carries a comparable share
// of yearly repository creations.
var DefaultMonthGroups = []MonthGroup{
	{time.January, 1, time.January, 31},
	{time.February, 1, time.March, 31},
	{time.April, 1, time.April, 30},
	{time.May, 1, time.June, 30},
	{time.July, 1, time.August, 31},
	{time.September, 1, time.October, 31},
	{time.November, 1, time.November, 30},
	{time.December, 1, time.December, 31},
}

// ParseMonthGroup parses "MM-DD..MM-DD".
func ParseMonthGroup(raw string) (MonthGroup, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(raw), "..")
	if !ok {
		return MonthGroup{}, fmt.Errorf("month group %q: expected MM-DD..MM-DD", raw)
	}
	sm, sd, err := parseMonthDay(start)
	if err != nil {
		return MonthGroup{}, fmt.Errorf("month group %q: %w", raw, err)
	}
	em, ed, err := parseMonthDay(end)
	if err != nil {
		return MonthGroup{}, fmt.Errorf("month group %q: %w", raw, err)
	}
	return MonthGroup{StartMonth: sm, StartDay: sd, EndMonth: em, EndDay: ed}, nil
}

func (g MonthGroup) String() string {
	return fmt.Sprintf("%02d-%02d..%02d-%02d", int(g.StartMonth), g.StartDay, int(g.EndMonth), g.EndDay)
}

func (g MonthGroup) in(year int) DateRange {
	return DateRange{
		From:  date(year, g.StartMonth, g.StartDay),
		To:    date(year, g.EndMonth, g.EndDay),
		Level: LevelMonthGroup,
	}
}

func parseMonthDay(raw string) (time.Month, int, error) {
	t, err := time.Parse("01-02", strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	return t.Month(), t.Day(), nil
}

// ValidateMonthGroups checks that groups tile a whole year, in both leap and
// common years, without gaps or overlaps.
func ValidateMonthGroups(groups []MonthGroup) error {
	if len(groups) == 0 {
		return fmt.Errorf("at least one month group is required")
	}
	for _, year := range []int{2023, 2024} {
		children := make([]DateRange, 0, len(groups))
		for _, g := range groups {
			children = append(children, g.in(year))
		}
		if err := checkTiling(YearRange(year), children); err != nil {
			return fmt.Errorf("month groups in %d: %w", year, err)
		}
	}
	return nil
}

// Splitter narrows a creation-date range into the next level down.
type Splitter struct {
	groups []MonthGroup
}

// NewSplitter builds a Splitter; nil groups selects DefaultMonthGroups.
func NewSplitter(groups []MonthGroup) Splitter {
	if len(groups) == 0 {
		groups = DefaultMonthGroups
	}
	return Splitter{groups: groups}
}

// Split returns the child ranges of r for a window pushed on the given day.
// An open range becomes calendar years up to the push year, a year becomes
// month groups clipped to the range, and a month group cannot be split.
func (s Splitter) Split(r DateRange, pushed time.Time) []DateRange {
	switch r.Level {
	case LevelOpen:
		var out []DateRange
		for year := r.From.Year(); year <= pushed.Year(); year++ {
			child := YearRange(year)
			if year == r.From.Year() {
				child.From = r.From
			}
			out = append(out, child)
		}
		return out
	case LevelYear:
		out := make([]DateRange, 0, len(s.groups))
		for _, g := range s.groups {
			child := g.in(r.From.Year())
			if child.From.Before(r.From) {
				child.From = r.From
			}
			if child.To.After(r.To) {
				child.To = r.To
			}
			if child.From.After(child.To) {
				continue
			}
			out = append(out, child)
		}
		return out
	default:
		return nil
	}
}

// CheckPartition verifies that children are disjoint, ordered, and cover the
// parent. An open parent is covered up to the last day of the push year, since
// nothing can be created after it was pushed.
func CheckPartition(parent DateRange, children []DateRange, pushed time.Time) error {
	if parent.Open() {
		parent.To = date(pushed.Year(), time.December, 31)
	}
	return checkTiling(parent, children)
}

func checkTiling(parent DateRange, children []DateRange) error {
	if len(children) == 0 {
		return fmt.Errorf("no child ranges for %s", parent)
	}
	if !children[0].From.Equal(parent.From) {
		return fmt.Errorf("first child %s does not start at %s", children[0], parent.From.Format(DayLayout))
	}
	for i := 1; i < len(children); i++ {
		want := children[i-1].To.AddDate(0, 0, 1)
		if !children[i].From.Equal(want) {
			return fmt.Errorf("child %s does not follow %s", children[i], children[i-1])
		}
	}
	last := children[len(children)-1]
	if !last.To.Equal(parent.To) {
		return fmt.Errorf("last child %s does not end at %s", last, parent.To.Format(DayLayout))
	}
	return nil
}

// Window is one fully bound search request scope: a base filter, a creation
// range, and a single push day. Windows are values; narrowing returns a copy.
type Window struct {
	Base    string
	Created DateRange
	Pushed  time.Time
}

// BaseFilter builds the fixed part of the query for a language.
func BaseFilter(language string, minStars int) string {
	return fmt.Sprintf(`stars:>%d language:"%s"`, minStars, language)
}

// Query is the window's identity: the exact search filter string.
func (w Window) Query() string {
	return fmt.Sprintf("%s created:%s pushed:%s", w.Base, w.Created.Qualifier(), w.Pushed.Format(DayLayout))
}

// Narrow returns a child window with the same base and push day.
func (w Window) Narrow(r DateRange) Window {
	w.Created = r
	return w
}

// LedgerKey identifies the window in the progress ledger.
func (w Window) LedgerKey() ledger.Key {
	return ledger.Key{
		Base:    w.Base,
		Created: w.Created.Qualifier(),
		Pushed:  w.Pushed.Format(DayLayout),
	}
}

// ParseDay parses a YYYY-MM-DD date in UTC.
func ParseDay(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", raw, err)
	}
	return t, nil
}

func date(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func day(t time.Time) time.Time {
	return date(t.Year(), t.Month(), t.Day())
}
