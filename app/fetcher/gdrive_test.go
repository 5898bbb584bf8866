package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newDriveFetcher(t *testing.T, handler http.HandlerFunc, maxSize int64) *DriveFetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	fetcher := NewDriveFetcher(server.Client(), maxSize, "test-agent")
	fetcher.baseURL = server.URL + "/uc?export=download&id=%s"
	return fetcher
}

func TestDriveFetchDirect(t *testing.T) {
	fetcher := newDriveFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="notes.pdf"`)
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "pdf-content")
	}, 0)

	result, err := fetcher.Fetch(context.Background(), "1aBcDeFgHiJ", "", t.TempDir())
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}

	if result.SizeBytes != int64(len("pdf-content")) {
		t.Errorf("Expected %d bytes, got %d", len("pdf-content"), result.SizeBytes)
	}
	if got := filepath.Base(result.LocalPath); got != "notes.pdf" {
		t.Errorf("Expected filename from Content-Disposition, got %q", got)
	}
	data, err := os.ReadFile(result.LocalPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pdf-content" {
		t.Errorf("Expected file content written, got %q", data)
	}
}

func TestDriveFetchConfirmInterstitial(t *testing.T) {
	fetcher := newDriveFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") == "t0k3n" {
			w.Header().Set("Content-Type", "application/octet-stream")
			fmt.Fprint(w, "large-file-content")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><a href="/uc?export=download&confirm=t0k3n&id=1aBcDeFgHiJ">Download anyway</a></html>`)
	}, 0)

	result, err := fetcher.Fetch(context.Background(), "1aBcDeFgHiJ", "", t.TempDir())
	if err != nil {
		t.Fatalf("Failed to fetch through interstitial: %v", err)
	}

	data, err := os.ReadFile(result.LocalPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "large-file-content" {
		t.Errorf("Expected confirmed download content, got %q", data)
	}
}

func TestDriveFetchQuotaExceeded(t *testing.T) {
	fetcher := newDriveFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html>Download quota exceeded for this file, try again later.</html>`)
	}, 0)

	_, err := fetcher.Fetch(context.Background(), "1aBcDeFgHiJ", "", t.TempDir())
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited for quota page, got %v", err)
	}
}

func TestDriveFetchNoConfirmToken(t *testing.T) {
	fetcher := newDriveFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html>You need access. Request access from the owner.</html>`)
	}, 0)

	_, err := fetcher.Fetch(context.Background(), "1aBcDeFgHiJ", "", t.TempDir())
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden without confirm token, got %v", err)
	}
}

func TestDriveFetchStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusTooManyRequests, ErrRateLimited},
	}

	for _, tt := range tests {
		fetcher := newDriveFetcher(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}, 0)

		_, err := fetcher.Fetch(context.Background(), "1aBcDeFgHiJ", "", t.TempDir())
		if !errors.Is(err, tt.want) {
			t.Errorf("HTTP %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestDriveFetchSizeCap(t *testing.T) {
	body := make([]byte, 64)

	// Declared up front via Content-Length.
	fetcher := newDriveFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	}, 32)
	_, err := fetcher.Fetch(context.Background(), "1aBcDeFgHiJ", "", t.TempDir())
	if !errors.Is(err, ErrSizeExceeded) {
		t.Errorf("Expected ErrSizeExceeded, got %v", err)
	}

	// Exactly at the cap is allowed.
	fetcher = newDriveFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(body)
	}, 64)
	result, err := fetcher.Fetch(context.Background(), "1aBcDeFgHiJ", "", t.TempDir())
	if err != nil {
		t.Fatalf("Expected fetch at exactly the cap to succeed: %v", err)
	}
	if result.SizeBytes != 64 {
		t.Errorf("Expected 64 bytes, got %d", result.SizeBytes)
	}
}

func TestDriveFilenameFallsBackToID(t *testing.T) {
	fetcher := newDriveFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		fmt.Fprint(w, "content")
	}, 0)

	result, err := fetcher.Fetch(context.Background(), "1aBcDeFgHiJ", "", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got := filepath.Base(result.LocalPath); got != "1aBcDeFgHiJ" {
		t.Errorf("Expected filename derived from id, got %q", got)
	}
}
