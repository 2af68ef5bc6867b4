package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// GatewayClient talks to an instagrapi-rest compatible HTTP gateway.
type GatewayClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *slog.Logger
}

func NewGatewayClient(baseURL, username, password string, logger *slog.Logger) *GatewayClient {
	if logger == nil {
		logger = discardLogger()
	}
	return &GatewayClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 10 * time.Minute},
		logger:   logger,
	}
}

// Login exchanges the credentials for a gateway session id.
func (c *GatewayClient) Login(ctx context.Context) (Session, error) {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	sessionID, err := parseSessionID(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return &gatewaySession{client: c, id: sessionID}, nil
}

// parseSessionID accepts a JSON string or a bare token. Objects and arrays
// are gateway error payloads even when served with a 2xx status.
func parseSessionID(body []byte) (string, error) {
	raw := strings.TrimSpace(string(body))
	var sessionID string
	if err := json.Unmarshal([]byte(raw), &sessionID); err != nil {
		if strings.ContainsAny(raw, "{[\"") || strings.ContainsFunc(raw, unicode.IsSpace) {
			return "", fmt.Errorf("unexpected login response: %.200s", raw)
		}
		sessionID = raw
	}
	if sessionID == "" {
		return "", errors.New("empty session id")
	}
	return sessionID, nil
}

type gatewaySession struct {
	client *GatewayClient
	id     string
}

func (s *gatewaySession) UploadPhoto(ctx context.Context, path, caption string) error {
	return s.client.upload(ctx, "/photo/upload", s.id, path, caption)
}

func (s *gatewaySession) UploadVideo(ctx context.Context, path, caption string) error {
	return s.client.upload(ctx, "/video/upload", s.id, path, caption)
}

func (c *GatewayClient) upload(ctx context.Context, endpoint, sessionID, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer f.Close()

	// The form is streamed so videos are never held in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, f, sessionID, caption))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("%w: %v", ErrUpload, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debug("uploading", "endpoint", endpoint, "file", path)
	_, err = c.do(req)
	// unblocks the writer if the transport stopped reading early
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return nil
}

func writeUploadForm(mw *multipart.Writer, f *os.File, sessionID, caption string) error {
	if err := mw.WriteField("sessionid", sessionID); err != nil {
		return err
	}
	if err := mw.WriteField("caption", caption); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(f.Name()))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", f.Name(), err)
	}
	return mw.Close()
}

func (c *GatewayClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
