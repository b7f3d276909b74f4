package cmd

import (
	"testing"

	"github.com/deep-saket/color-matching/internal/matcher"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    matcher.Size
		wantErr bool
	}{
		{in: "64", want: matcher.Size{Width: 64, Height: 64}},
		{in: "64x32", want: matcher.Size{Width: 64, Height: 32}},
		{in: " 16X8 ", want: matcher.Size{Width: 16, Height: 8}},
		{in: "", wantErr: true},
		{in: "x", wantErr: true},
		{in: "64x", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-4x4", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseSize(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSize(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseSize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
