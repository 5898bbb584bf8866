package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// YtDlpFetcher shells out to yt-dlp to download a video. The binary handles
// format negotiation and merging; this wrapper classifies its failures and
// locates the produced file.
type YtDlpFetcher struct {
	binary  string
	quality string
	timeout time.Duration
}

func NewYtDlpFetcher(quality string, timeout time.Duration) *YtDlpFetcher {
	return &YtDlpFetcher{
		binary:  "yt-dlp",
		quality: quality,
		timeout: timeout,
	}
}

func (f *YtDlpFetcher) Fetch(ctx context.Context, id string, locator string, destDir string) (*Result, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	outputTemplate := filepath.Join(destDir, id+".%(ext)s")
	args := []string{
		"--no-progress",
		"--no-playlist",
		"--format", f.formatSelector(),
		"--output", outputTemplate,
		targetURL(id, locator),
	}

	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug("Running yt-dlp", "video_id", id, "quality", f.quality)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyYtDlpError(stderr.String(), err)
	}

	localPath, size, err := f.locateOutput(destDir, id)
	if err != nil {
		return nil, err
	}

	return &Result{LocalPath: localPath, SizeBytes: size}, nil
}

// targetURL picks the URL handed to yt-dlp. Items carry the page URL the
// poller saw, so Instagram and YouTube media both route correctly; an empty
// locator falls back to the YouTube watch URL for the id.
func targetURL(id, locator string) string {
	if locator != "" {
		return locator
	}
	return "https://www.youtube.com/watch?v=" + id
}

func (f *YtDlpFetcher) formatSelector() string {
	switch f.quality {
	case "", "best":
		return "bestvideo+bestaudio/best"
	default:
		// Quality like "1080p" caps the video height.
		height := strings.TrimSuffix(f.quality, "p")
		return fmt.Sprintf("bestvideo[height<=%s]+bestaudio/best[height<=%s]", height, height)
	}
}

// locateOutput finds the merged file produced for the video id. The
// extension is only known after yt-dlp picks a container.
func (f *YtDlpFetcher) locateOutput(destDir, id string) (string, int64, error) {
	matches, err := filepath.Glob(filepath.Join(destDir, id+".*"))
	if err != nil {
		return "", 0, fmt.Errorf("failed to glob download output: %w", err)
	}

	for _, match := range matches {
		// Skip leftovers from interrupted runs.
		if strings.HasSuffix(match, ".part") || strings.HasSuffix(match, ".ytdl") {
			continue
		}
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		return match, info.Size(), nil
	}

	return "", 0, fmt.Errorf("yt-dlp produced no output for video %s", id)
}

func classifyYtDlpError(stderr string, err error) error {
	lowered := strings.ToLower(stderr)
	switch {
	case strings.Contains(lowered, "video unavailable"),
		strings.Contains(lowered, "this video has been removed"),
		strings.Contains(lowered, "404"):
		return fmt.Errorf("%w: %s", ErrNotFound, firstLine(stderr))
	case strings.Contains(lowered, "private video"),
		strings.Contains(lowered, "sign in to confirm"),
		strings.Contains(lowered, "403"):
		return fmt.Errorf("%w: %s", ErrForbidden, firstLine(stderr))
	case strings.Contains(lowered, "429"),
		strings.Contains(lowered, "too many requests"):
		return fmt.Errorf("%w: %s", ErrRateLimited, firstLine(stderr))
	}
	if stderr != "" {
		return fmt.Errorf("yt-dlp failed: %s", firstLine(stderr))
	}
	return fmt.Errorf("yt-dlp failed: %w", err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
