package formatter

import (
	"testing"
	"time"
)

func TestConvertFormioFormat(t *testing.T) {
	tests := map[string]string{
		"yyyy-MM-dd hh:mm a": "YYYY-MM-DD hh:mm A",
		"dd/MM/yyyy":         "DD/MM/YYYY",
		"EEEE":               "dddd",
	}
	for in, want := range tests {
		if got := ConvertFormioFormat(in); got != want {
			t.Errorf("ConvertFormioFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatMoment(t *testing.T) {
	ts := time.Date(2024, time.March, 2, 15, 4, 5, 120*int(time.Millisecond), time.UTC)

	tests := []struct {
		format string
		want   string
	}{
		{"YYYY-MM-DD", "2024-03-02"},
		{"YYYY-MM-DD hh:mm A", "2024-03-02 03:04 PM"},
		{"HH:mm:ss.SSS", "15:04:05.120"},
		{"dddd, MMMM Do YYYY", "Saturday, March 2nd 2024"},
		{"ddd MMM D", "Sat Mar 2"},
		{"M/D/YY h:m a", "3/2/24 3:4 pm"},
		{"[Today is] dddd", "Today is Saturday"},
		{"X", "1709391845"},
	}
	for _, tt := range tests {
		if got := FormatMoment(ts, tt.format); got != tt.want {
			t.Errorf("FormatMoment(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestOrdinal(t *testing.T) {
	for n, want := range map[int]string{1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 12: "12th", 13: "13th", 21: "21st", 22: "22nd", 31: "31st"} {
		if got := ordinal(n); got != want {
			t.Errorf("ordinal(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestParseTime(t *testing.T) {
	for _, v := range []any{"2024-03-02T15:04:05Z", "2024-03-02T15:04:05.000+00:00", "2024-03-02", float64(1709391845000)} {
		if _, ok := ParseTime(v); !ok {
			t.Errorf("ParseTime(%v) failed", v)
		}
	}
	if _, ok := ParseTime("yesterday"); ok {
		t.Error("ParseTime accepted garbage")
	}
}
