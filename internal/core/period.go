package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Period is a calendar month, written YYYY-MM.
type Period struct {
	year  int
	month time.Month
}

var monthNamesPT = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// NewPeriod builds a Period, normalizing month overflow.
func NewPeriod(year, month int) Period {
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return Period{year: t.Year(), month: t.Month()}
}

// ParsePeriod parses YYYY-MM.
func ParsePeriod(s string) (Period, error) {
	if len(s) != 7 || s[4] != '-' {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	m, err := strconv.Atoi(s[5:])
	if err != nil || m < 1 || m > 12 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{year: y, month: time.Month(m)}, nil
}

// CurrentPeriod is the month containing today.
func CurrentPeriod() Period { return Today().Period() }

func (p Period) Year() int         { return p.year }
func (p Period) Month() time.Month { return p.month }
func (p Period) IsZero() bool      { return p.year == 0 && p.month == 0 }

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.year, int(p.month)) }

// Add moves the period by offset months.
func (p Period) Add(offset int) Period { return NewPeriod(p.year, int(p.month)+offset) }

// Label renders the period in Brazilian Portuguese, e.g. "janeiro de 2024".
func (p Period) Label() string {
	if p.month < time.January || p.month > time.December {
		return p.String()
	}
	return fmt.Sprintf("%s de %d", monthNamesPT[p.month-1], p.year)
}

// Contains reports whether d falls in the period.
func (p Period) Contains(d Date) bool {
	return d.Year() == p.year && time.Month(d.Month()) == p.month
}

// FirstDay is the first day of the period.
func (p Period) FirstDay() Date { return NewDate(p.year, int(p.month), 1) }

func (p Period) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

func (p *Period) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, string(b))
	}
	parsed, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
