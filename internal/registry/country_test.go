package registry

import "testing"

func TestNormalizeCountry(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"England", "GB"},
		{" ENGLAND ", "GB"},
		{"Great Britain", "GB"},
		{"united kingdom", "GB"},
		{"Scotland", "GB"},
		{"USA", "US"},
		{"United States", "US"},
		{"u.s.a.", "US"},
		{"Germany", "GERMANY"},
		{"  france ", "FRANCE"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeCountry(tc.in); got != tc.want {
			t.Errorf("NormalizeCountry(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}
