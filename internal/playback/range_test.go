package playback

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantOK    bool
		wantErr   error
	}{
		{"empty header", "", 1000, 0, 0, false, nil},
		{"full range", "bytes=0-999", 1000, 0, 999, true, nil},
		{"open end", "bytes=500-", 1000, 500, 999, true, nil},
		{"suffix", "bytes=-500", 1000, 500, 999, true, nil},
		{"single byte", "bytes=0-0", 1000, 0, 0, true, nil},
		{"end clamped", "bytes=0-2000", 1000, 0, 999, true, nil},
		{"suffix larger than blob", "bytes=-2000", 500, 0, 499, true, nil},
		{"first of several spans", "bytes=0-99, 200-299", 1000, 0, 99, true, nil},

		{"start past end", "bytes=1000-", 1000, 0, 0, false, ErrUnsatisfiable},
		{"reversed", "bytes=20-10", 1000, 0, 0, false, ErrUnsatisfiable},
		{"no unit", "0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"wrong unit", "items=0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad start", "bytes=x-100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad end", "bytes=0-y", 1000, 0, 0, false, ErrInvalidRange},
		{"zero suffix", "bytes=-0", 1000, 0, 0, false, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseRange(tt.header, tt.size)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseRange() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ParseRange() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (got.Start != tt.wantStart || got.End != tt.wantEnd) {
				t.Errorf("ParseRange() = {%d, %d}, want {%d, %d}", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestRange_Header(t *testing.T) {
	r := Range{Start: 500, End: 999}
	if got := r.Length(); got != 500 {
		t.Errorf("Length() = %d, want 500", got)
	}
	if got := r.Header(1000); got != "bytes 500-999/1000" {
		t.Errorf("Header() = %s", got)
	}
}
