package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/servicelens-inc/servicelens-engine/pkg/models"
)

// School years run July 1 through June 30.
const schoolYearStartMonth = time.July

var (
	lastNMonthsPattern = regexp.MustCompile(`^(?:last|past|previous)\s+(\d{1,2})\s+months?$`)
	isoMonthPattern    = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	yearPattern        = regexp.MustCompile(`^(?:in\s+)?(\d{4})$`)
	monthYearPattern   = regexp.MustCompile(`^([a-z]+)(?:\s+(\d{4}))?$`)
	rangePattern       = regexp.MustCompile(`^(?:from\s+)?(\d{4}-\d{2}-\d{2})\s+(?:to|through|until)\s+(\d{4}-\d{2}-\d{2})$`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

func monthStart(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func monthEnd(year int, month time.Month) time.Time {
	return monthStart(year, month).AddDate(0, 1, -1)
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// schoolYearStart returns July 1 of the school year containing t.
func schoolYearStart(t time.Time) time.Time {
	year := t.Year()
	if t.Month() < schoolYearStartMonth {
		year--
	}
	return monthStart(year, schoolYearStartMonth)
}

// ResolveTimeExpression deterministically resolves a raw time phrase
// against the request time. Unrecognized or empty phrases resolve to an
// unspecified window, which the router treats as a clarification trigger,
// never a silent default.
func ResolveTimeExpression(raw string, now time.Time) models.TimeWindow {
	phrase := strings.ToLower(strings.TrimSpace(raw))
	phrase = strings.TrimPrefix(phrase, "for ")
	now = day(now)

	switch phrase {
	case "":
		return models.TimeWindow{Kind: models.WindowUnspecified}

	case "this month", "current month":
		return models.TimeWindow{
			Kind:  models.WindowMonth,
			Start: monthStart(now.Year(), now.Month()),
			End:   monthEnd(now.Year(), now.Month()),
		}

	case "last month", "previous month":
		prev := monthStart(now.Year(), now.Month()).AddDate(0, -1, 0)
		return models.TimeWindow{
			Kind:  models.WindowMonth,
			Start: prev,
			End:   monthEnd(prev.Year(), prev.Month()),
		}

	case "this year", "ytd", "year to date", "this calendar year":
		return models.TimeWindow{
			Kind:  models.WindowYear,
			Start: monthStart(now.Year(), time.January),
			End:   now,
		}

	case "last year":
		return models.TimeWindow{
			Kind:  models.WindowYear,
			Start: monthStart(now.Year()-1, time.January),
			End:   monthEnd(now.Year()-1, time.December),
		}

	case "this school year", "school year", "current school year":
		return models.TimeWindow{
			Kind:  models.WindowSchoolYear,
			Start: schoolYearStart(now),
			End:   now,
		}

	case "last school year", "previous school year":
		start := schoolYearStart(now).AddDate(-1, 0, 0)
		return models.TimeWindow{
			Kind:  models.WindowSchoolYear,
			Start: start,
			End:   start.AddDate(1, 0, -1), // June 30
		}
	}

	if m := lastNMonthsPattern.FindStringSubmatch(phrase); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n > 0 {
			start := monthStart(now.Year(), now.Month()).AddDate(0, -n, 0)
			prev := monthStart(now.Year(), now.Month()).AddDate(0, -1, 0)
			return models.TimeWindow{
				Kind:  models.WindowLastNMonths,
				Start: start,
				End:   monthEnd(prev.Year(), prev.Month()),
			}
		}
	}

	if m := rangePattern.FindStringSubmatch(phrase); m != nil {
		start, err1 := time.ParseInLocation("2006-01-02", m[1], time.UTC)
		end, err2 := time.ParseInLocation("2006-01-02", m[2], time.UTC)
		if err1 == nil && err2 == nil && !end.Before(start) {
			return models.TimeWindow{Kind: models.WindowExplicit, Start: start, End: end}
		}
	}

	if m := isoMonthPattern.FindStringSubmatch(phrase); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			return models.TimeWindow{
				Kind:  models.WindowMonth,
				Start: monthStart(year, time.Month(month)),
				End:   monthEnd(year, time.Month(month)),
			}
		}
	}

	if m := yearPattern.FindStringSubmatch(phrase); m != nil {
		year, _ := strconv.Atoi(m[1])
		if year >= 2000 && year <= 2100 {
			return models.TimeWindow{
				Kind:  models.WindowYear,
				Start: monthStart(year, time.January),
				End:   monthEnd(year, time.December),
			}
		}
	}

	if m := monthYearPattern.FindStringSubmatch(phrase); m != nil {
		if month, ok := monthNames[m[1]]; ok {
			year := now.Year()
			if m[2] != "" {
				year, _ = strconv.Atoi(m[2])
			} else if month > now.Month() {
				// A bare month name refers to its most recent occurrence.
				year--
			}
			return models.TimeWindow{
				Kind:  models.WindowMonth,
				Start: monthStart(year, month),
				End:   monthEnd(year, month),
			}
		}
	}

	return models.TimeWindow{Kind: models.WindowUnspecified}
}
