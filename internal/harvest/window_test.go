package harvest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/search-harvester/internal/harvest"
	"github.com/JakeFAU/search-harvester/internal/ledger"
)

func mustDay(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := harvest.ParseDay(raw)
	require.NoError(t, err)
	return d
}

func qualifiers(ranges []harvest.DateRange) []string {
	out := make([]string, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r.Qualifier())
	}
	return out
}

func TestWindowQueryAndLedgerKey(t *testing.T) {
	t.Parallel()

	w := harvest.Window{
		Base:    harvest.BaseFilter("Go", 0),
		Created: harvest.OpenRange(mustDay(t, "2010-01-01")),
		Pushed:  mustDay(t, "2021-03-01"),
	}
	assert.Equal(t, `stars:>0 language:"Go" created:>=2010-01-01 pushed:2021-03-01`, w.Query())
	assert.Equal(t, ledger.Key{
		Base:    `stars:>0 language:"Go"`,
		Created: ">=2010-01-01",
		Pushed:  "2021-03-01",
	}, w.LedgerKey())

	narrowed := w.Narrow(harvest.YearRange(2015))
	assert.Equal(t, `stars:>0 language:"Go" created:2015-01-01..2015-12-31 pushed:2021-03-01`, narrowed.Query())
	assert.True(t, w.Created.Open(), "narrowing must not mutate the parent")
}

func TestSplitOpenRangeIntoYears(t *testing.T) {
	t.Parallel()

	s := harvest.NewSplitter(nil)
	parent := harvest.OpenRange(mustDay(t, "2018-06-15"))
	pushed := mustDay(t, "2021-03-01")

	children := s.Split(parent, pushed)
	assert.Equal(t, []string{
		"2018-06-15..2018-12-31",
		"2019-01-01..2019-12-31",
		"2020-01-01..2020-12-31",
		"2021-01-01..2021-12-31",
	}, qualifiers(children))
	for _, c := range children {
		assert.Equal(t, harvest.LevelYear, c.Level)
	}
	require.NoError(t, harvest.CheckPartition(parent, children, pushed))
}

func TestSplitYearIntoDefaultMonthGroups(t *testing.T) {
	t.Parallel()

	s := harvest.NewSplitter(nil)
	parent := harvest.YearRange(2020)
	children := s.Split(parent, mustDay(t, "2021-03-01"))

	assert.Equal(t, []string{
		"2020-01-01..2020-01-31",
		"2020-02-01..2020-03-31",
		"2020-04-01..2020-04-30",
		"2020-05-01..2020-06-30",
		"2020-07-01..2020-08-31",
		"2020-09-01..2020-10-31",
		"2020-11-01..2020-11-30",
		"2020-12-01..2020-12-31",
	}, qualifiers(children))
	require.NoError(t, harvest.CheckPartition(parent, children, mustDay(t, "2021-03-01")))
}

func TestSplitPartialYearClipsGroups(t *testing.T) {
	t.Parallel()

	s := harvest.NewSplitter(nil)
	parent := harvest.DateRange{
		From:  mustDay(t, "2018-06-15"),
		To:    mustDay(t, "2018-12-31"),
		Level: harvest.LevelYear,
	}
	children := s.Split(parent, mustDay(t, "2021-03-01"))

	assert.Equal(t, []string{
		"2018-06-15..2018-06-30",
		"2018-07-01..2018-08-31",
		"2018-09-01..2018-10-31",
		"2018-11-01..2018-11-30",
		"2018-12-01..2018-12-31",
	}, qualifiers(children))
	require.NoError(t, harvest.CheckPartition(parent, children, mustDay(t, "2021-03-01")))
}

func TestSplitMonthGroupIsFloor(t *testing.T) {
	t.Parallel()

	r := harvest.DateRange{From: mustDay(t, "2020-01-01"), To: mustDay(t, "2020-01-31"), Level: harvest.LevelMonthGroup}
	assert.Empty(t, harvest.NewSplitter(nil).Split(r, mustDay(t, "2021-03-01")))
}

func TestCheckPartitionRejectsGapsAndOverlaps(t *testing.T) {
	t.Parallel()

	parent := harvest.YearRange(2020)
	pushed := mustDay(t, "2021-03-01")
	mk := func(from, to string) harvest.DateRange {
		return harvest.DateRange{From: mustDay(t, from), To: mustDay(t, to), Level: harvest.LevelMonthGroup}
	}

	gap := []harvest.DateRange{mk("2020-01-01", "2020-05-31"), mk("2020-07-01", "2020-12-31")}
	require.Error(t, harvest.CheckPartition(parent, gap, pushed))

	overlap := []harvest.DateRange{mk("2020-01-01", "2020-06-30"), mk("2020-06-30", "2020-12-31")}
	require.Error(t, harvest.CheckPartition(parent, overlap, pushed))

	short := []harvest.DateRange{mk("2020-01-01", "2020-06-30"), mk("2020-07-01", "2020-12-30")}
	require.Error(t, harvest.CheckPartition(parent, short, pushed))

	require.Error(t, harvest.CheckPartition(parent, nil, pushed))
}

func TestMonthGroups(t *testing.T) {
	t.Parallel()

	require.NoError(t, harvest.ValidateMonthGroups(harvest.DefaultMonthGroups))

	var sixGroups []harvest.MonthGroup
	for _, raw := range []string{"01-01..03-31", "04-01..06-30", "07-01..08-31", "09-01..10-31", "11-01..11-30", "12-01..12-31"} {
		g, err := harvest.ParseMonthGroup(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, g.String())
		sixGroups = append(sixGroups, g)
	}
	require.NoError(t, harvest.ValidateMonthGroups(sixGroups))

	leapOnly, err := harvest.ParseMonthGroup("01-01..02-29")
	require.NoError(t, err)
	rest, err := harvest.ParseMonthGroup("03-01..12-31")
	require.NoError(t, err)
	require.Error(t, harvest.ValidateMonthGroups([]harvest.MonthGroup{leapOnly, rest}))

	_, err = harvest.ParseMonthGroup("01-01")
	require.Error(t, err)
	require.Error(t, harvest.ValidateMonthGroups(nil))
}

func TestRecordRowRoundTrip(t *testing.T) {
	t.Parallel()

	rec := harvest.Record{
		ID:          42,
		FullName:    "octo/hello",
		Name:        "hello",
		OwnerLogin:  "octo",
		HTMLURL:     "https://github.com/octo/hello",
		Description: "says, \"hello\"\nover two lines",
		Language:    "Go",
		Stars:       7,
		CreatedAt:   time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2021, 3, 1, 8, 0, 0, 0, time.UTC),
		ObservedAt:  time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	row := rec.Row()
	require.Len(t, row, len(harvest.RecordColumns))
	assert.Empty(t, row[12], "zero pushed_at encodes as empty")

	back, err := harvest.ParseRecord(row)
	require.NoError(t, err)
	assert.Equal(t, rec, back)

	_, err = harvest.ParseRecord(row[:3])
	require.Error(t, err)
	row[0] = "x"
	_, err = harvest.ParseRecord(row)
	require.Error(t, err)
}
