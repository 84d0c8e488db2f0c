package harvest

import (
	"errors"
	"fmt"
	"time"
)

// Config scopes one crawl run.
type Config struct {
	Language string
	MinStars int
	// CreatedFrom is the lower bound of the open creation range. Ignored when
	// Year is set.
	CreatedFrom time.Time
	// Year restricts the creation range to one calendar year when non-zero.
	Year     int
	StartDay time.Time
	EndDay   time.Time

	PageSize        int
	MaxPages        int
	WindowCap       int
	MaxQuotaRetries int
	MonthGroups     []MonthGroup
}

// Validate reports the first problem with the run scope.
func (c Config) Validate() error {
	if c.Language == "" {
		return errors.New("language is required")
	}
	if c.MinStars < 0 {
		return errors.New("min stars must be >= 0")
	}
	if c.StartDay.IsZero() {
		return errors.New("start day is required")
	}
	if c.EndDay.Before(c.StartDay) {
		return fmt.Errorf("end day %s is before start day %s",
			c.EndDay.Format(DayLayout), c.StartDay.Format(DayLayout))
	}
	if c.Year == 0 && c.CreatedFrom.IsZero() {
		return errors.New("created from is required without a creation year")
	}
	if c.Year < 0 {
		return errors.New("year must be positive")
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		return errors.New("page size must be between 1 and 100")
	}
	if c.MaxPages <= 0 {
		return errors.New("max pages must be > 0")
	}
	if c.WindowCap <= 0 {
		return errors.New("window cap must be > 0")
	}
	if c.PageSize*c.MaxPages < c.WindowCap {
		return fmt.Errorf("page size %d times max pages %d cannot reach the window cap %d",
			c.PageSize, c.MaxPages, c.WindowCap)
	}
	if c.MaxQuotaRetries < 0 {
		return errors.New("max quota retries must be >= 0")
	}
	if err := ValidateMonthGroups(c.monthGroups()); err != nil {
		return fmt.Errorf("month groups: %w", err)
	}
	return nil
}

func (c Config) monthGroups() []MonthGroup {
	if len(c.MonthGroups) == 0 {
		return DefaultMonthGroups
	}
	return c.MonthGroups
}

// baseRange is the creation range every push day starts from.
func (c Config) baseRange() DateRange {
	if c.Year > 0 {
		return YearRange(c.Year)
	}
	return OpenRange(c.CreatedFrom)
}
