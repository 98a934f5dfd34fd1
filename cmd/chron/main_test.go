package main

import "testing"

func TestParsePort(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "", wantErr: true},
		{raw: "8081", want: 8081},
		{raw: "0", want: 0},
		{raw: "-1", wantErr: true},
		{raw: "not-a-number", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parsePort(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parsePort(%q): expected error, got none", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePort(%q): unexpected error: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("parsePort(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
