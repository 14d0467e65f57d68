package filter

import (
	"errors"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "days", input: "30d", want: 30 * Day},
		{name: "days uppercase", input: "7D", want: 7 * Day},
		{name: "weeks", input: "2w", want: 2 * Week},
		{name: "months", input: "6mo", want: 6 * Month},
		{name: "years", input: "1y", want: Year},
		{name: "decimal", input: "1.5d", want: 36 * time.Hour},
		{name: "go duration", input: "90m", want: 90 * time.Minute},
		{name: "whitespace", input: "  3d ", want: 3 * Day},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "soon", wantErr: true},
		{name: "negative", input: "-1d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "bytes", input: "1024", want: 1024},
		{name: "iec", input: "2GiB", want: 2 << 30},
		{name: "si", input: "500MB", want: 500_000_000},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}

	if _, err := ParseSize("-5M"); !errors.Is(err, ErrNegativeValue) {
		t.Errorf("ParseSize(-5M) error = %v, want ErrNegativeValue", err)
	}
}
