package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
)

// AListClient uploads files to an AList server. The session token from
// /api/auth/login is cached and refreshed once on a 401 before the upload
// is reported as an auth failure.
type AListClient struct {
	httpClient *http.Client
	serverURL  string
	username   string
	password   string

	mu    sync.Mutex
	token string
}

func NewAListClient(httpClient *http.Client, serverURL, username, password string) *AListClient {
	return &AListClient{
		httpClient: httpClient,
		serverURL:  strings.TrimRight(serverURL, "/"),
		username:   username,
		password:   password,
	}
}

type alistResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *AListClient) Upload(ctx context.Context, localPath, remotePath string) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	if err := c.ensureDirectory(ctx, token, path.Dir(remotePath)); err != nil {
		return err
	}

	status, err := c.putFile(ctx, token, localPath, remotePath)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		// Token expired mid-session; log in again and retry once.
		token, err = c.login(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthExpired, err)
		}
		status, err = c.putFile(ctx, token, localPath, remotePath)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("%w: upload rejected after re-login", ErrAuthExpired)
		}
	}

	return nil
}

func (c *AListClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.login(ctx)
}

func (c *AListClient) login(ctx context.Context) (string, error) {
	payload, _ := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.serverURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to log in: %w", err)
	}
	defer resp.Body.Close()

	body, err := c.decodeResponse(resp)
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil || data.Token == "" {
		return "", fmt.Errorf("login response carried no token")
	}

	c.mu.Lock()
	c.token = data.Token
	c.mu.Unlock()

	return data.Token, nil
}

func (c *AListClient) ensureDirectory(ctx context.Context, token, dir string) error {
	if dir == "" || dir == "/" || dir == "." {
		return nil
	}

	payload, _ := json.Marshal(map[string]string{"path": dir})

	req, err := http.NewRequestWithContext(ctx, "POST", c.serverURL+"/api/fs/mkdir", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create mkdir request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}
	defer resp.Body.Close()

	if _, err := c.decodeResponse(resp); err != nil {
		return fmt.Errorf("mkdir %s failed: %w", dir, err)
	}
	return nil
}

// putFile streams the file body in a PUT to /api/fs/put with the encoded
// destination in the File-Path header. It returns 401 instead of an error
// so the caller can refresh the token.
func (c *AListClient) putFile(ctx context.Context, token, localPath, remotePath string) (int, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", c.serverURL+"/api/fs/put", file)
	if err != nil {
		return 0, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/octet-stream")
	// Escape path segments but keep the separators.
	req.Header.Set("File-Path", (&url.URL{Path: remotePath}).EscapedPath())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return http.StatusUnauthorized, nil
	}

	if _, err := c.decodeResponse(resp); err != nil {
		return resp.StatusCode, fmt.Errorf("upload failed: %w", err)
	}
	return resp.StatusCode, nil
}

// decodeResponse parses the AList envelope and turns non-200 codes into
// errors, mapping quota refusals to their sentinel.
func (c *AListClient) decodeResponse(resp *http.Response) (*alistResponse, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var body alistResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	switch {
	case body.Code == http.StatusOK:
		return &body, nil
	case body.Code == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrAuthExpired, body.Message)
	case strings.Contains(strings.ToLower(body.Message), "quota"),
		strings.Contains(strings.ToLower(body.Message), "no space"):
		return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, body.Message)
	default:
		return nil, fmt.Errorf("server returned code %d: %s", body.Code, body.Message)
	}
}
