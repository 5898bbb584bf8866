package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const testCookieFile = `# Netscape HTTP Cookie File
.instagram.com	TRUE	/	TRUE	1767225600	csrftoken	abc123
.instagram.com	TRUE	/	TRUE	1767225600	sessionid	7232948940%3Atoken%3A28
.instagram.com	TRUE	/	TRUE	1767225600	ds_user_id	7232948940
`

func TestCookieFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(path, []byte(testCookieFile), 0600); err != nil {
		t.Fatal(err)
	}

	source := &CookieFileSource{Path: path}
	token, err := source.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Failed to resolve cookie file: %v", err)
	}
	if token != "7232948940%3Atoken%3A28" {
		t.Errorf("Expected sessionid cookie value, got %s", token)
	}
}

func TestCookieFileSourceMissingCookie(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(path, []byte("# empty export\n"), 0600); err != nil {
		t.Fatal(err)
	}

	source := &CookieFileSource{Path: path}
	if _, err := source.Resolve(context.Background()); err == nil {
		t.Error("Expected error when sessionid is absent")
	}
}

func TestSessionFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.txt")
	if err := os.WriteFile(path, []byte("  stored-token\n"), 0600); err != nil {
		t.Fatal(err)
	}

	source := &SessionFileSource{Path: path}
	token, err := source.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Failed to resolve session file: %v", err)
	}
	if token != "stored-token" {
		t.Errorf("Expected trimmed token, got %q", token)
	}
}

func TestCredentialChainFallsThrough(t *testing.T) {
	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.txt")
	if err := os.WriteFile(sessionPath, []byte("fallback-token"), 0600); err != nil {
		t.Fatal(err)
	}

	chain := NewCredentialChain(
		&CookieFileSource{Path: filepath.Join(dir, "missing-cookies.txt")},
		&SessionFileSource{Path: sessionPath},
	)

	token, err := chain.Token(context.Background())
	if err != nil {
		t.Fatalf("Failed to resolve chain: %v", err)
	}
	if token != "fallback-token" {
		t.Errorf("Expected fallback token, got %s", token)
	}
}

func TestCredentialChainExhausted(t *testing.T) {
	dir := t.TempDir()
	chain := NewCredentialChain(
		&CookieFileSource{Path: filepath.Join(dir, "nope.txt")},
		&LoginSource{Login: func(context.Context) (string, error) {
			return "", errors.New("login disabled")
		}},
	)

	if _, err := chain.Token(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Expected ErrNoCredentials, got %v", err)
	}
}
