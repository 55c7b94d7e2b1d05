// Package inventory downloads deposit inventory spreadsheets from the Tiny
// web UI, which has no API for them. A headless Chrome session logs in and
// its cookies are reused for a plain HTTP download.
package inventory

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	ErrChromeNotFound = errors.New("inventory: chrome/chromium not found; set CHROME_PATH")
	ErrCredentials    = errors.New("inventory: username and password are required")
)

type Credentials struct {
	Username string
	Password string
}

type Config struct {
	LoginURL    string
	DownloadURL string
	ChromePath  string
	Headless    bool
	Timeout     time.Duration // download only; login has its own bound
}

// SessionFunc logs in and returns the session cookies.
type SessionFunc func(ctx context.Context, cr Credentials) ([]*http.Cookie, error)

type Downloader struct {
	cfg     Config
	http    *http.Client
	session SessionFunc
	log     *zap.SugaredLogger
}

type Option func(*Downloader)

// WithSession replaces the browser login.
func WithSession(f SessionFunc) Option { return func(d *Downloader) { d.session = f } }

func WithHTTPClient(c *http.Client) Option { return func(d *Downloader) { d.http = c } }

func New(cfg Config, log *zap.SugaredLogger, opts ...Option) *Downloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := &Downloader{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log:  log,
	}
	d.session = d.browserLogin
	for _, o := range opts {
		o(d)
	}
	return d
}

// DepositURL builds the inventory report URL for one deposit.
func (d *Downloader) DepositURL(depositID string) (string, error) {
	u, err := url.Parse(d.cfg.DownloadURL)
	if err != nil {
		return "", fmt.Errorf("inventory: download url: %w", err)
	}
	q := url.Values{
		"produto":                 {""},
		"idDeposito":              {depositID},
		"idCategoria":             {"0"},
		"descricaoCategoria":      {""},
		"exibirSaldo":             {""},
		"idCategoriaFiltro":       {"0"},
		"layoutExportacao":        {"R"},
		"formatoPlanilha":         {"xls"},
		"exibirEstoqueDisponivel": {"N"},
		"produtoSituacao":         {"A"},
		"idFornecedor":            {"0"},
		"valorBaseado":            {"0"},
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DownloadDepositSheet logs in and saves the deposit inventory to outPath,
// creating its directory. It returns the absolute path written.
func (d *Downloader) DownloadDepositSheet(ctx context.Context, cr Credentials, depositID, outPath string) (string, error) {
	if cr.Username == "" || cr.Password == "" {
		return "", ErrCredentials
	}
	if depositID == "" {
		return "", errors.New("inventory: deposit id is required")
	}
	abs, err := filepath.Abs(outPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("inventory: create dir: %w", err)
	}
	target, err := d.DepositURL(depositID)
	if err != nil {
		return "", err
	}

	start := time.Now()
	cookies, err := d.session(ctx, cr)
	if err != nil {
		return "", fmt.Errorf("inventory: login: %w", err)
	}
	d.log.Infow("tiny session ready", "cookies", len(cookies), "took", time.Since(start))

	if err := d.fetch(ctx, target, cookies, abs); err != nil {
		return "", err
	}
	d.log.Infow("inventory downloaded", "deposit", depositID, "path", abs, "took", time.Since(start))
	return abs, nil
}

func (d *Downloader) fetch(ctx context.Context, target string, cookies []*http.Cookie, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	res, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("inventory: download: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("inventory: download: HTTP %d", res.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".inventory-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, res.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("inventory: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
