package service_test

import (
	"testing"

	"github.com/zonegate/server/internal/gate/service"
)

func TestCanonicalPayload_FieldOrder(t *testing.T) {
	got := string(service.CanonicalPayload("CP-1", "2026-01-02T03:04:05Z", "A", "B", "tok"))
	want := "CP-1|2026-01-02T03:04:05Z|A|B|tok"
	if got != want {
		t.Errorf("canonical payload = %q, want %q", got, want)
	}
}

func TestCanonicalPayload_EmptyZonesKeepSlots(t *testing.T) {
	// Outside transitions still occupy their delimiter slots so the field
	// count is stable.
	got := string(service.CanonicalPayload("CP-1", "ts", "", "", "tok"))
	want := "CP-1|ts|||tok"
	if got != want {
		t.Errorf("canonical payload = %q, want %q", got, want)
	}
}

func TestIsOutside(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"", true},
		{"  ", true},
		{"OUT", true},
		{"A", false},
		{"out", false},
	}
	for _, tc := range cases {
		if got := service.IsOutside(tc.code); got != tc.want {
			t.Errorf("IsOutside(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
