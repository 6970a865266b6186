package plan

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of every resolved date.
const DateLayout = "2006-01-02"

// DefaultRangeDays is used when a question names no period.
const DefaultRangeDays = 30

// maxDateRanges matches the GA4 Data API limit per report.
const maxDateRanges = 4

type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Days is the inclusive length of the range, or 0 when unparsable.
func (d DateRange) Days() int {
	s, err1 := time.Parse(DateLayout, d.StartDate)
	e, err2 := time.Parse(DateLayout, d.EndDate)
	if err1 != nil || err2 != nil || e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

var nDaysAgoPattern = regexp.MustCompile(`^(\d+)daysago$`)

// ResolveDate accepts YYYY-MM-DD, today, yesterday and NdaysAgo, relative to today (UTC).
func ResolveDate(expr string, today time.Time) (time.Time, error) {
	today = truncateDay(today)
	e := strings.ToLower(strings.TrimSpace(expr))
	switch e {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	if m := nDaysAgoPattern.FindStringSubmatch(e); m != nil {
		n, _ := strconv.Atoi(m[1])
		return today.AddDate(0, 0, -n), nil
	}
	t, err := time.Parse(DateLayout, e)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q", expr)
	}
	return t, nil
}

// LastNDays is the n-day window ending today inclusive.
func LastNDays(n int, today time.Time) DateRange {
	if n < 1 {
		n = 1
	}
	today = truncateDay(today)
	return DateRange{
		StartDate: today.AddDate(0, 0, -(n - 1)).Format(DateLayout),
		EndDate:   today.Format(DateLayout),
	}
}

func DefaultDateRange(today time.Time) DateRange {
	return LastNDays(DefaultRangeDays, today)
}

// PreviousPeriod is the window of equal length immediately before r.
func PreviousPeriod(r DateRange) (DateRange, bool) {
	s, err := time.Parse(DateLayout, r.StartDate)
	if err != nil {
		return DateRange{}, false
	}
	n := r.Days()
	if n == 0 {
		return DateRange{}, false
	}
	end := s.AddDate(0, 0, -1)
	return DateRange{
		StartDate: end.AddDate(0, 0, -(n - 1)).Format(DateLayout),
		EndDate:   end.Format(DateLayout),
	}, true
}

// normalizeRanges resolves, validates and orders ranges earliest first.
func normalizeRanges(in []DateRange, today time.Time) ([]DateRange, []string) {
	var warnings []string
	out := make([]DateRange, 0, len(in))
	for _, r := range in {
		s, err := ResolveDate(r.StartDate, today)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("dropped date range: %v", err))
			continue
		}
		e, err := ResolveDate(r.EndDate, today)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("dropped date range: %v", err))
			continue
		}
		if e.Before(s) {
			s, e = e, s
		}
		out = append(out, DateRange{StartDate: s.Format(DateLayout), EndDate: e.Format(DateLayout)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartDate == out[j].StartDate {
			return out[i].EndDate < out[j].EndDate
		}
		return out[i].StartDate < out[j].StartDate
	})
	if len(out) > maxDateRanges {
		warnings = append(warnings, fmt.Sprintf("kept the first %d date ranges", maxDateRanges))
		out = out[:maxDateRanges]
	}
	return out, warnings
}

var (
	lastNPattern    = regexp.MustCompile(`\b(?:last|past|previous)\s+(\d+)\s+(day|week|month)s?\b`)
	isoDatePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	comparePattern  = regexp.MustCompile(`\b(compare|compared|comparison|vs\.?|versus|previous period|prior period|period over period|week over week|month over month)\b`)
	lastWeekPattern = regexp.MustCompile(`\b(?:last|past|previous)\s+week\b`)
	lastMonPattern  = regexp.MustCompile(`\b(?:last|previous)\s+month\b`)
	pastMonPattern  = regexp.MustCompile(`\bpast\s+month\b`)
	thisMonPattern  = regexp.MustCompile(`\bthis\s+month\b`)
	thisWeekPattern = regexp.MustCompile(`\bthis\s+week\b`)
	todayPattern    = regexp.MustCompile(`\btoday\b`)
	thisYearPattern = regexp.MustCompile(`\b(?:this|current)\s+year\b|\byear to date\b|\bytd\b`)
	lastYearPattern = regexp.MustCompile(`\b(?:last|previous)\s+year\b`)
)

// datePhrasePatterns are blanked out before field names are looked up in a
// question, so "last 30 days" does not read as the "day" dimension.
var datePhrasePatterns = []*regexp.Regexp{
	isoDatePattern, lastNPattern, lastWeekPattern, lastMonPattern, pastMonPattern,
	thisMonPattern, thisWeekPattern, thisYearPattern, lastYearPattern,
}

// RangesFromText reads the period a question talks about. ok is false when the
// text names no period.
func RangesFromText(text string, today time.Time) ([]DateRange, bool) {
	t := strings.ToLower(text)
	today = truncateDay(today)

	var base []DateRange
	if dates := isoDatePattern.FindAllString(t, -1); len(dates) > 0 {
		switch {
		case len(dates) >= 4:
			base = []DateRange{{dates[0], dates[1]}, {dates[2], dates[3]}}
		case len(dates) >= 2:
			base = []DateRange{{dates[0], dates[1]}}
		default:
			base = []DateRange{{dates[0], dates[0]}}
		}
	} else if m := lastNPattern.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "week":
			n *= 7
		case "month":
			start := today.AddDate(0, -n, 1)
			n = int(today.Sub(start).Hours()/24) + 1
		}
		base = []DateRange{LastNDays(n, today)}
	} else if lastWeekPattern.MatchString(t) {
		base = []DateRange{LastNDays(7, today)}
	} else if lastMonPattern.MatchString(t) {
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		prevFirst := first.AddDate(0, -1, 0)
		base = []DateRange{{prevFirst.Format(DateLayout), first.AddDate(0, 0, -1).Format(DateLayout)}}
	} else if pastMonPattern.MatchString(t) {
		base = []DateRange{LastNDays(30, today)}
	} else if thisMonPattern.MatchString(t) {
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		base = []DateRange{{first.Format(DateLayout), today.Format(DateLayout)}}
	} else if thisWeekPattern.MatchString(t) {
		offset := (int(today.Weekday()) + 6) % 7 // weeks start on Monday
		base = []DateRange{{today.AddDate(0, 0, -offset).Format(DateLayout), today.Format(DateLayout)}}
	} else if thisYearPattern.MatchString(t) {
		first := time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		base = []DateRange{{first.Format(DateLayout), today.Format(DateLayout)}}
	} else if lastYearPattern.MatchString(t) {
		first := time.Date(today.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(today.Year()-1, 12, 31, 0, 0, 0, 0, time.UTC)
		base = []DateRange{{first.Format(DateLayout), last.Format(DateLayout)}}
	} else if strings.Contains(t, "yesterday") {
		y := today.AddDate(0, 0, -1).Format(DateLayout)
		base = []DateRange{{y, y}}
	} else if todayPattern.MatchString(t) {
		d := today.Format(DateLayout)
		base = []DateRange{{d, d}}
	}

	if len(base) == 0 {
		return nil, false
	}

	if len(base) == 1 && comparePattern.MatchString(t) {
		if prev, ok := PreviousPeriod(base[0]); ok {
			base = append(base, prev)
		}
	}
	out, _ := normalizeRanges(base, today)
	return out, len(out) > 0
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
