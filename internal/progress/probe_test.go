package progress

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	d, err := parseDuration([]byte("183.500000\n"))
	if err != nil {
		t.Fatalf("parseDuration() error = %v", err)
	}
	if want := 183500 * time.Millisecond; d != want {
		t.Errorf("parseDuration() = %v, want %v", d, want)
	}
	for _, bad := range []string{"", "N/A", "0", "-3"} {
		if _, err := parseDuration([]byte(bad)); err == nil {
			t.Errorf("parseDuration(%q) expected error", bad)
		}
	}
}
