package youtube

import "testing"

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"PT58S", 58},
		{"PT1M3S", 63},
		{"PT1H2M3S", 3723},
		{"P1DT1S", 86401},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := parseISODuration(tc.in); got != tc.want {
			t.Errorf("parseISODuration(%q) = %f, want %f", tc.in, got, tc.want)
		}
	}
}
