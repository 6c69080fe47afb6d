package core

import (
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2024, 1, 1), true},
		{NewDate(2024, 3, 15), true},
		{"", false},
		{"2024-13-01", false},
		{"2024-3-1", false},
		{NewDate(2024, 3, 16), false},
	}
	for i, tc := range cases {
		err := tc.d.Validate(refNow)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateMonth(t *testing.T) {
	m, ok := Date("2024-02-29").Month()
	if !ok || m.Year != 2024 || m.Month != time.February {
		t.Fatalf("unexpected month %v %v", m, ok)
	}
	if _, ok := Date("garbage").Month(); ok {
		t.Fatal("expected invalid date to have no month")
	}
	if m, ok := Date("2024-05-03T10:00:00Z").Month(); !ok || m.Month != time.May {
		t.Fatalf("expected RFC 3339 input to parse, got %v %v", m, ok)
	}
	if !(Month{2023, time.December}).Before(Month{2024, time.January}) {
		t.Fatal("December 2023 must sort before January 2024")
	}
}

func TestFormatters(t *testing.T) {
	if got := FormatDate("2024-01-10"); got != "10 Jan 2024" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := FormatDate("soon"); got != "soon" {
		t.Errorf("FormatDate of invalid input = %q", got)
	}
	if got := FormatDate(""); got != "" {
		t.Errorf("FormatDate of empty input = %q", got)
	}
	if got := FormatDateInput("soon"); got != "" {
		t.Errorf("FormatDateInput of invalid input = %q", got)
	}
	if got := MonthLabel("2024-02-01"); got != "Feb 2024" {
		t.Errorf("MonthLabel = %q", got)
	}
}
