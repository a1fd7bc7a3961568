package report

import (
	"errors"
	"testing"
	"time"

	"tally/internal/core"
)

func TestResolvePeriod(t *testing.T) {
	now := time.Date(2025, 8, 14, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		keyword  string
		from, to core.Date
		wantFrom string
		wantTo   string
		wantErr  bool
	}{
		{name: "default is current month", keyword: "", wantFrom: "2025-08-01", wantTo: "2025-08-31"},
		{name: "month", keyword: "month", wantFrom: "2025-08-01", wantTo: "2025-08-31"},
		{name: "last-month", keyword: "last-month", wantFrom: "2025-07-01", wantTo: "2025-07-31"},
		{name: "quarter", keyword: "quarter", wantFrom: "2025-07-01", wantTo: "2025-09-30"},
		{name: "year", keyword: "year", wantFrom: "2025-01-01", wantTo: "2025-12-31"},
		{
			name: "explicit range wins",
			from: core.NewDate(2025, 2, 1), to: core.NewDate(2025, 2, 28),
			wantFrom: "2025-02-01", wantTo: "2025-02-28",
		},
		{name: "from without to", from: core.NewDate(2025, 2, 1), wantErr: true},
		{name: "inverted range", from: core.NewDate(2025, 3, 1), to: core.NewDate(2025, 2, 1), wantErr: true},
		{name: "unknown keyword", keyword: "fortnight", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolvePeriod(tt.keyword, tt.from, tt.to, now)
			if tt.wantErr {
				if !errors.Is(err, core.ErrValidation) {
					t.Fatalf("got err %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.From.String() != tt.wantFrom || p.To.String() != tt.wantTo {
				t.Errorf("got %s..%s, want %s..%s", p.From, p.To, tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func TestMonthStartsSpansYearBoundary(t *testing.T) {
	p := Period{From: core.NewDate(2024, 11, 15), To: core.NewDate(2025, 1, 20)}
	starts := p.monthStarts()
	if len(starts) != 3 {
		t.Fatalf("got %d months, want 3", len(starts))
	}
	want := []string{"2024-11-01", "2024-12-01", "2025-01-01"}
	for i, w := range want {
		if starts[i].String() != w {
			t.Errorf("month %d = %s, want %s", i, starts[i], w)
		}
	}
}
