package sources

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ErrNoCredentials is returned when every source in a chain fails to
// produce a session token.
var ErrNoCredentials = errors.New("no usable credentials")

// CredentialSource resolves a session token for an authenticated poller.
type CredentialSource interface {
	Name() string
	Resolve(ctx context.Context) (string, error)
}

// CredentialChain tries its sources in order and returns the first token
// that resolves. Failures short of the last source are logged, not fatal.
type CredentialChain struct {
	sources []CredentialSource
}

func NewCredentialChain(sources ...CredentialSource) *CredentialChain {
	return &CredentialChain{sources: sources}
}

func (c *CredentialChain) Token(ctx context.Context) (string, error) {
	for _, source := range c.sources {
		token, err := source.Resolve(ctx)
		if err != nil {
			slog.Debug("Credential source failed, trying next", "source", source.Name(), "error", err)
			continue
		}
		if token != "" {
			return token, nil
		}
	}
	return "", ErrNoCredentials
}

// CookieFileSource reads a Netscape-format cookie export and extracts the
// sessionid cookie.
type CookieFileSource struct {
	Path string
}

func (s *CookieFileSource) Name() string { return "cookie_file" }

func (s *CookieFileSource) Resolve(_ context.Context) (string, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		// domain, flag, path, secure, expiry, name, value
		if len(fields) < 7 {
			continue
		}
		if fields[5] == "sessionid" {
			return fields[6], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read cookie file: %w", err)
	}
	return "", fmt.Errorf("sessionid cookie not found in %s", s.Path)
}

// SessionFileSource reads a previously persisted session token.
type SessionFileSource struct {
	Path string
}

func (s *SessionFileSource) Name() string { return "session_file" }

func (s *SessionFileSource) Resolve(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read session file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("session file %s is empty", s.Path)
	}
	return token, nil
}

// LoginSource wraps an interactive or programmatic login as the last
// resort of a chain.
type LoginSource struct {
	Login func(ctx context.Context) (string, error)
}

func (s *LoginSource) Name() string { return "login" }

func (s *LoginSource) Resolve(ctx context.Context) (string, error) {
	if s.Login == nil {
		return "", errors.New("login not configured")
	}
	return s.Login(ctx)
}
