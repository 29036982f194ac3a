package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/allycraft/allycraft/internal/logging"
	"github.com/allycraft/allycraft/internal/version"
)

const (
	// DefaultTimeout bounds a single package request.
	DefaultTimeout = 30 * time.Minute
	// DefaultRetries is the number of retries after the first attempt.
	DefaultRetries = 3
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "allycraft/1.0"
)

// ProgressFunc receives the bytes written so far and the total reported by
// the server, or -1 when the server did not send a length.
type ProgressFunc func(received, total int64)

// Downloader fetches the package described by desc into dest.
//
// Implementations must honour ctx, must not leave a partial file at dest on
// failure and may call progress from the calling goroutine only.
type Downloader interface {
	Download(ctx context.Context, desc version.Descriptor, dest string, progress ProgressFunc) error
}

// ErrNoURL is returned when no package URL template is configured.
var ErrNoURL = errors.New("no package URL configured")

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// HTTPConfig configures an HTTPDownloader.
type HTTPConfig struct {
	// URLTemplate is the package URL with {version} and {code} placeholders.
	URLTemplate string
	// KeyringPath enables detached signature checks against <url>.sig.
	KeyringPath string
	Timeout     time.Duration
	Retries     int
	RetryWait   time.Duration
	UserAgent   string
	Logger      *zap.Logger
}

// HTTPDownloader downloads packages over HTTP(S).
type HTTPDownloader struct {
	client    *retryablehttp.Client
	template  string
	userAgent string
	verifier  *Verifier
	log       *zap.Logger
}

// NewHTTPDownloader creates a downloader. A configured keyring is loaded
// eagerly so a broken keyring fails at startup rather than mid-install.
func NewHTTPDownloader(cfg HTTPConfig) (*HTTPDownloader, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	if cfg.RetryWait > 0 {
		client.RetryWaitMin = cfg.RetryWait
		client.RetryWaitMax = 4 * cfg.RetryWait
	}
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = logging.NewLeveled(cfg.Logger.Named("http"))

	d := &HTTPDownloader{
		client:    client,
		template:  cfg.URLTemplate,
		userAgent: cfg.UserAgent,
		log:       cfg.Logger,
	}
	if cfg.KeyringPath != "" {
		v, err := NewVerifier(cfg.KeyringPath)
		if err != nil {
			return nil, err
		}
		d.verifier = v
	}
	return d, nil
}

// URLFor expands the URL template for desc.
func (d *HTTPDownloader) URLFor(desc version.Descriptor) (string, error) {
	if d.template == "" {
		return "", ErrNoURL
	}
	r := strings.NewReplacer("{version}", desc.Version.String(), "{code}", desc.Code)
	return r.Replace(d.template), nil
}

// Download implements Downloader.
func (d *HTTPDownloader) Download(ctx context.Context, desc version.Descriptor, dest string, progress ProgressFunc) error {
	url, err := d.URLFor(desc)
	if err != nil {
		return err
	}

	d.log.Debug("downloading package",
		zap.String("version", desc.Version.String()),
		zap.String("url", url))

	if err := d.fetch(ctx, url, dest, progress); err != nil {
		return err
	}

	if err := d.verify(ctx, desc, url, dest); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

func (d *HTTPDownloader) verify(ctx context.Context, desc version.Descriptor, url, dest string) error {
	if d.verifier != nil {
		sigPath := dest + ".sig"
		defer os.Remove(sigPath)
		if err := d.fetch(ctx, url+".sig", sigPath, nil); err != nil {
			return fmt.Errorf("download signature: %w", err)
		}
		if err := d.verifier.VerifySignature(dest, sigPath); err != nil {
			return err
		}
		d.log.Debug("package signature verified", zap.String("version", desc.Version.String()))
	}
	if desc.SHA256 != "" {
		if err := VerifySHA256(dest, desc.SHA256); err != nil {
			return err
		}
	}
	return nil
}

// fetch streams url into dest via a temporary file and an atomic rename.
func (d *HTTPDownloader) fetch(ctx context.Context, url, dest string, progress ProgressFunc) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := dest + ".part"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := true
	defer func() {
		tmp.Close()
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	var w io.Writer = tmp
	if progress != nil {
		w = &countingWriter{w: tmp, total: resp.ContentLength, fn: progress}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("copy response body: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false
	return nil
}

type countingWriter struct {
	w     io.Writer
	n     int64
	total int64
	fn    ProgressFunc
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.fn(c.n, c.total)
	return n, err
}
