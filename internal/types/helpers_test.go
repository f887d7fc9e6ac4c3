package types

import (
	"testing"
	"time"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

func TestDateOnly(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "strips clock time",
			in:   time.Date(2026, time.March, 10, 14, 30, 45, 999, time.UTC),
			want: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "converts to UTC before truncating",
			in:   time.Date(2026, time.March, 11, 2, 0, 0, 0, ist),
			want: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "already a date",
			in:   time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DateOnly(tt.in); !got.Equal(tt.want) {
				t.Errorf("DateOnly(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLastDayOfMonth(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "31-day month",
			in:   time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "30-day month",
			in:   time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "february non-leap",
			in:   time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "february leap year",
			in:   time.Date(2028, time.February, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "december crosses into new year correctly",
			in:   time.Date(2026, time.December, 5, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastDayOfMonth(tt.in); !got.Equal(tt.want) {
				t.Errorf("LastDayOfMonth(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNextWebhookRetryAt(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		retries int
		want    time.Duration
	}{
		{retries: 1, want: 2 * time.Minute},
		{retries: 2, want: 4 * time.Minute},
		{retries: 3, want: 8 * time.Minute},
	}
	for _, tt := range tests {
		got := NextWebhookRetryAt(now, tt.retries)
		if got.Sub(now) != tt.want {
			t.Errorf("NextWebhookRetryAt(now, %d) = now+%v, want now+%v", tt.retries, got.Sub(now), tt.want)
		}
	}
}
