package fetcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const driveDownloadURL = "https://drive.google.com/uc?export=download&id=%s"

var confirmTokenPattern = regexp.MustCompile(`confirm=([a-zA-Z0-9_-]+)`)

// DriveFetcher downloads a shared Drive file by its reference id. Large
// files are gated behind a virus-scan interstitial that carries a confirm
// token; the fetcher follows it once.
type DriveFetcher struct {
	httpClient *http.Client
	baseURL    string
	maxSize    int64
	userAgent  string
}

func NewDriveFetcher(httpClient *http.Client, maxSize int64, userAgent string) *DriveFetcher {
	return &DriveFetcher{
		httpClient: httpClient,
		baseURL:    driveDownloadURL,
		maxSize:    maxSize,
		userAgent:  userAgent,
	}
}

// Fetch ignores the locator. Drive downloads always go through the export
// endpoint keyed by the file id, regardless of the URL form the reference
// was detected in.
func (f *DriveFetcher) Fetch(ctx context.Context, id string, _ string, destDir string) (*Result, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	resp, err := f.get(ctx, fmt.Sprintf(f.baseURL, id))
	if err != nil {
		return nil, err
	}

	// An HTML body in place of file content is the scan interstitial.
	if isHTMLResponse(resp) {
		confirmURL, err := f.extractConfirmURL(resp, id)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		resp, err = f.get(ctx, confirmURL)
		if err != nil {
			return nil, err
		}
		if isHTMLResponse(resp) {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: confirm redirect still returned HTML for %s", ErrForbidden, id)
		}
	}
	defer resp.Body.Close()

	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSizeExceeded, resp.ContentLength)
	}

	localPath := filepath.Join(destDir, downloadFilename(resp, id))
	size, err := f.writeFile(localPath, resp.Body)
	if err != nil {
		os.Remove(localPath)
		return nil, err
	}

	return &Result{LocalPath: localPath, SizeBytes: size}, nil
}

func (f *DriveFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch drive file: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP 404", ErrNotFound)
	case http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP 403", ErrForbidden)
	case http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("drive returned HTTP %d", resp.StatusCode)
	}
}

// extractConfirmURL reads the interstitial page and rebuilds the download
// URL with its confirm token. A page mentioning quota is a throttle, not a
// hard failure.
func (f *DriveFetcher) extractConfirmURL(resp *http.Response, id string) (string, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read interstitial page: %w", err)
	}

	page := string(body)
	if strings.Contains(strings.ToLower(page), "quota exceeded") {
		return "", fmt.Errorf("%w: download quota exceeded", ErrRateLimited)
	}

	match := confirmTokenPattern.FindStringSubmatch(page)
	if match == nil {
		return "", fmt.Errorf("%w: no download available for %s", ErrForbidden, id)
	}

	return fmt.Sprintf(f.baseURL, id) + "&confirm=" + match[1], nil
}

func (f *DriveFetcher) writeFile(localPath string, body io.Reader) (int64, error) {
	out, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	reader := body
	if f.maxSize > 0 {
		// One extra byte distinguishes "exactly at the cap" from "over it"
		// when the server omits Content-Length.
		reader = io.LimitReader(body, f.maxSize+1)
	}

	size, err := io.Copy(out, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if f.maxSize > 0 && size > f.maxSize {
		return 0, fmt.Errorf("%w: over %d bytes", ErrSizeExceeded, f.maxSize)
	}

	return size, nil
}

func isHTMLResponse(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "text/html")
}

func downloadFilename(resp *http.Response, id string) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := filepath.Base(params["filename"]); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return id
}
