package note

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date patterns use moment-style tokens (YYYY-MM-DD, HH:mm, gggg-[W]ww).
// Text inside square brackets is copied literally.

type dateToken struct {
	token  string
	layout string // Go layout equivalent, empty when there is none
	format func(t time.Time) string
}

// Longest tokens first so that "MMMM" wins over "MM".
var dateTokens = []dateToken{
	{"YYYY", "2006", func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) }},
	{"gggg", "", func(t time.Time) string { y, _ := t.ISOWeek(); return fmt.Sprintf("%04d", y) }},
	{"GGGG", "", func(t time.Time) string { y, _ := t.ISOWeek(); return fmt.Sprintf("%04d", y) }},
	{"MMMM", "January", func(t time.Time) string { return t.Month().String() }},
	{"dddd", "Monday", func(t time.Time) string { return t.Weekday().String() }},
	{"MMM", "Jan", func(t time.Time) string { return t.Month().String()[:3] }},
	{"ddd", "Mon", func(t time.Time) string { return t.Weekday().String()[:3] }},
	{"YY", "06", func(t time.Time) string { return fmt.Sprintf("%02d", t.Year()%100) }},
	{"MM", "01", func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) }},
	{"DD", "02", func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) }},
	{"Do", "", func(t time.Time) string { return ordinal(t.Day()) }},
	{"ww", "", func(t time.Time) string { _, w := t.ISOWeek(); return fmt.Sprintf("%02d", w) }},
	{"WW", "", func(t time.Time) string { _, w := t.ISOWeek(); return fmt.Sprintf("%02d", w) }},
	{"HH", "15", func(t time.Time) string { return fmt.Sprintf("%02d", t.Hour()) }},
	{"hh", "03", func(t time.Time) string { return fmt.Sprintf("%02d", hour12(t)) }},
	{"mm", "04", func(t time.Time) string { return fmt.Sprintf("%02d", t.Minute()) }},
	{"ss", "05", func(t time.Time) string { return fmt.Sprintf("%02d", t.Second()) }},
	{"ZZ", "-0700", func(t time.Time) string { return t.Format("-0700") }},
	{"M", "1", func(t time.Time) string { return strconv.Itoa(int(t.Month())) }},
	{"D", "2", func(t time.Time) string { return strconv.Itoa(t.Day()) }},
	{"Q", "", func(t time.Time) string { return strconv.Itoa((int(t.Month())-1)/3 + 1) }},
	{"w", "", func(t time.Time) string { _, w := t.ISOWeek(); return strconv.Itoa(w) }},
	{"W", "", func(t time.Time) string { _, w := t.ISOWeek(); return strconv.Itoa(w) }},
	{"H", "15", func(t time.Time) string { return strconv.Itoa(t.Hour()) }},
	{"h", "3", func(t time.Time) string { return strconv.Itoa(hour12(t)) }},
	{"m", "4", func(t time.Time) string { return strconv.Itoa(t.Minute()) }},
	{"s", "5", func(t time.Time) string { return strconv.Itoa(t.Second()) }},
	{"A", "PM", func(t time.Time) string { return t.Format("PM") }},
	{"a", "pm", func(t time.Time) string { return t.Format("pm") }},
	{"Z", "-07:00", func(t time.Time) string { return t.Format("-07:00") }},
}

// FormatDate renders t with a moment-style pattern.
func FormatDate(t time.Time, pattern string) string {
	var b strings.Builder
	walkPattern(pattern, func(tok *dateToken, literal string) {
		if tok != nil {
			b.WriteString(tok.format(t))
			return
		}
		b.WriteString(literal)
	})
	return b.String()
}

// ParseDate reads a value rendered by FormatDate in the local time zone.
// Patterns with week or ordinal tokens cannot be parsed back.
func ParseDate(value, pattern string) (time.Time, error) {
	var b strings.Builder
	var unsupported string
	walkPattern(pattern, func(tok *dateToken, literal string) {
		switch {
		case tok == nil:
			b.WriteString(literal)
		case tok.layout == "":
			unsupported = tok.token
		default:
			b.WriteString(tok.layout)
		}
	})
	if unsupported != "" {
		return time.Time{}, fmt.Errorf("date token %q cannot be parsed", unsupported)
	}
	return time.ParseInLocation(b.String(), strings.TrimSpace(value), time.Local)
}

func walkPattern(pattern string, emit func(tok *dateToken, literal string)) {
	for i := 0; i < len(pattern); {
		if pattern[i] == '[' {
			end := strings.IndexByte(pattern[i:], ']')
			if end > 0 {
				emit(nil, pattern[i+1:i+end])
				i += end + 1
				continue
			}
		}
		matched := false
		for k := range dateTokens {
			tok := &dateTokens[k]
			if strings.HasPrefix(pattern[i:], tok.token) {
				emit(tok, "")
				i += len(tok.token)
				matched = true
				break
			}
		}
		if !matched {
			emit(nil, pattern[i:i+1])
			i++
		}
	}
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		return 12
	}
	return h
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}
