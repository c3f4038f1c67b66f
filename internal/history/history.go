// Package history shapes stored decisions for display.
package history

import (
	"sort"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/magicball/internal/decision"
)

const (
	// MonthLayout formats section headers, e.g. "March 2024".
	MonthLayout = "January 2006"

	// DateLayout formats item dates, e.g. "Mar 1, 09:00".
	DateLayout = "Jan 2, 15:04"
)

// Item is a decision prepared for display.
type Item struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
	Date   string `json:"date"`
}

// Section groups the items of one calendar month.
type Section struct {
	Header string    `json:"header"`
	Month  time.Time `json:"-"`
	Items  []Item    `json:"items"`
}

// Present prepares d for display in loc: the answer upper-cased and the
// creation time formatted with DateLayout. A nil loc means UTC.
func Present(d decision.Decision, loc *time.Location) Item {
	if loc == nil {
		loc = time.UTC
	}
	return Item{
		ID:     d.ID,
		Answer: cases.Upper(language.Und).String(d.Answer),
		Date:   d.CreatedAt.In(loc).Format(DateLayout),
	}
}

// Sections groups ds by calendar month in loc.
//
// Sections are ordered newest month first, or oldest first when ascending is
// set. Items keep their order from ds. A nil loc means UTC.
func Sections(ds []decision.Decision, loc *time.Location, ascending bool) []Section {
	if loc == nil {
		loc = time.UTC
	}

	byMonth := make(map[time.Time]*Section)
	for _, d := range ds {
		t := d.CreatedAt.In(loc)
		month := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
		sec, ok := byMonth[month]
		if !ok {
			sec = &Section{Header: month.Format(MonthLayout), Month: month}
			byMonth[month] = sec
		}
		sec.Items = append(sec.Items, Present(d, loc))
	}

	sections := make([]Section, 0, len(byMonth))
	for _, sec := range byMonth {
		sections = append(sections, *sec)
	}
	sort.Slice(sections, func(i, j int) bool {
		if ascending {
			return sections[i].Month.Before(sections[j].Month)
		}
		return sections[i].Month.After(sections[j].Month)
	})
	return sections
}
