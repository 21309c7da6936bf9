package formatter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultDateFormat is used for datetime fields without a format.
const DefaultDateFormat = "yyyy-MM-dd hh:mm a"

// InvalidDate is rendered for values that do not parse as a time.
const InvalidDate = "Invalid date"

// ConvertFormioFormat rewrites a Formio date format (yyyy-MM-dd, a for the
// meridiem) into moment tokens.
func ConvertFormioFormat(format string) string {
	for _, r := range [][2]string{{"y", "Y"}, {"d", "D"}, {"E", "d"}, {"a", "A"}, {"U", "X"}} {
		format = strings.ReplaceAll(format, r[0], r[1])
	}
	return format
}

type dateToken struct {
	token  string
	render func(t time.Time) string
}

func layout(l string) func(time.Time) string {
	return func(t time.Time) string { return t.Format(l) }
}

func itoa(f func(time.Time) int) func(time.Time) string {
	return func(t time.Time) string { return strconv.Itoa(f(t)) }
}

// dateTokens are matched longest first.
var dateTokens = []dateToken{
	{"YYYY", func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) }},
	{"MMMM", layout("January")},
	{"dddd", layout("Monday")},
	{"MMM", layout("Jan")},
	{"ddd", layout("Mon")},
	{"SSS", func(t time.Time) string { return fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond)) }},
	{"YY", layout("06")},
	{"MM", layout("01")},
	{"Do", func(t time.Time) string { return ordinal(t.Day()) }},
	{"DD", layout("02")},
	{"dd", func(t time.Time) string { return t.Format("Mon")[:2] }},
	{"HH", layout("15")},
	{"hh", layout("03")},
	{"mm", layout("04")},
	{"ss", layout("05")},
	{"ZZ", layout("-0700")},
	{"M", itoa(func(t time.Time) int { return int(t.Month()) })},
	{"D", itoa(time.Time.Day)},
	{"d", itoa(func(t time.Time) int { return int(t.Weekday()) })},
	{"H", itoa(time.Time.Hour)},
	{"h", layout("3")},
	{"m", itoa(time.Time.Minute)},
	{"s", itoa(time.Time.Second)},
	{"A", layout("PM")},
	{"a", layout("pm")},
	{"Z", layout("-07:00")},
	{"X", func(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }},
	{"x", func(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }},
}

// FormatMoment formats t with a moment-style format string. Text in
// square brackets is copied literally.
func FormatMoment(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '[' {
			if end := strings.IndexByte(format[i:], ']'); end > 0 {
				b.WriteString(format[i+1 : i+end])
				i += end + 1
				continue
			}
		}
		matched := false
		for _, tok := range dateTokens {
			if strings.HasPrefix(format[i:], tok.token) {
				b.WriteString(tok.render(t))
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String()
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTime reads a time from an ISO-8601 string, a millisecond epoch
// number or a time.Time.
func ParseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		for _, l := range timeLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, true
			}
		}
	case float64:
		return time.UnixMilli(int64(x)), true
	case int64:
		return time.UnixMilli(x), true
	case int:
		return time.UnixMilli(int64(x)), true
	}
	return time.Time{}, false
}
