package progress

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ProbeFunc returns the duration of a local media file.
type ProbeFunc func(ctx context.Context, path string) (time.Duration, error)

// LocalPath returns the filesystem path behind uri when it names a local
// file (file:// or an absolute path).
func LocalPath(uri string) (string, bool) {
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil || u.Path == "" {
			return "", false
		}
		return u.Path, true
	}
	if filepath.IsAbs(uri) {
		return uri, true
	}
	return "", false
}

// FFProbe reads the container duration with ffprobe.
func FFProbe(ctx context.Context, path string) (time.Duration, error) {
	bin, err := exec.LookPath("ffprobe")
	if err != nil {
		return 0, fmt.Errorf("progress: ffprobe not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("progress: ffprobe %s: %w", path, err)
	}
	return parseDuration(out)
}

func parseDuration(out []byte) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("progress: parse duration: %w", err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("progress: non-positive duration %v", secs)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
