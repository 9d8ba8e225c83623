package collab

import "testing"

func TestParseCapabilities(t *testing.T) {
	cases := []struct {
		name  string
		names []string
		want  Capabilities
	}{
		{"empty", nil, Capabilities{}},
		{"single", []string{"push"}, Capabilities{Push: true}},
		{"all", []string{"push", "search", "bots"}, Capabilities{Push: true, Search: true, Bots: true}},
		{"unknown ignored", []string{"push", "telemetry"}, Capabilities{Push: true}},
		{"duplicates", []string{"bots", "bots"}, Capabilities{Bots: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseCapabilities(tc.names); got != tc.want {
				t.Fatalf("ParseCapabilities(%v) = %+v, want %+v", tc.names, got, tc.want)
			}
		})
	}
}
