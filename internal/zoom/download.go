package zoom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrTooLarge is returned when a download exceeds the size cap.
var ErrTooLarge = errors.New("download exceeds size limit")

// Downloader streams recording files to local temp files.
type Downloader struct {
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// NewDownloader creates a downloader. maxBytes <= 0 disables the size cap.
func NewDownloader(timeout time.Duration, maxBytes int64, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment, DisableCompression: true, IdleConnTimeout: 30 * time.Second},
		},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Download fetches rawURL into a new file under dir and returns its path and size. A non-empty
// token is sent as a bearer token and as the access_token query parameter, which recording
// download URLs accept. The partial file is removed on error.
func (d *Downloader) Download(ctx context.Context, rawURL, token, dir string) (string, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, fmt.Errorf("parse download url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("download: server returned status %d", resp.StatusCode)
	}
	if d.maxBytes > 0 && resp.ContentLength > d.maxBytes {
		return "", 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create work dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "recording-*.mp4")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && d.maxBytes > 0 && n > d.maxBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.maxBytes)
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	d.logger.Info("recording downloaded", zap.String("path", path), zap.Int64("bytes", n))
	return path, n, nil
}
