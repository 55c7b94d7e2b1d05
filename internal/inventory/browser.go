package inventory

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	loginTimeout = 2 * time.Minute

	selUsername     = `#username`
	selPassword     = `#password`
	selNext         = `#kc-content-wrapper main aside > div > button`
	selSubmit       = `#kc-content-wrapper main aside > div > form > button`
	selSessionModal = `#bs-modal-ui-popup div.modal-footer > button.btn-primary`
)

var chromeCandidates = []string{
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
}

// ResolveChromePath returns the first installed browser, or "".
func ResolveChromePath() string {
	for _, p := range chromeCandidates {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

func (d *Downloader) allocatorOptions(execPath string) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 768),
	)
}

func (d *Downloader) browserLogin(ctx context.Context, cr Credentials) ([]*http.Cookie, error) {
	execPath := d.cfg.ChromePath
	if execPath == "" {
		execPath = ResolveChromePath()
	}
	if execPath == "" {
		return nil, ErrChromeNotFound
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, d.allocatorOptions(execPath)...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancel := context.WithTimeout(browserCtx, loginTimeout)
	defer cancel()

	d.log.Infow("tiny login", "url", d.cfg.LoginURL)
	err := chromedp.Run(runCtx,
		chromedp.Navigate(d.cfg.LoginURL),
		chromedp.WaitVisible(selUsername, chromedp.ByQuery),
		chromedp.SendKeys(selUsername, cr.Username, chromedp.ByQuery),
		chromedp.Click(selNext, chromedp.ByQuery),
		chromedp.WaitVisible(selPassword, chromedp.ByQuery),
		chromedp.SendKeys(selPassword, cr.Password, chromedp.ByQuery),
		chromedp.Click(selSubmit, chromedp.ByQuery),
		chromedp.Sleep(5*time.Second),
	)
	if err != nil {
		return nil, err
	}

	// "session already active" modal
	var modal []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(selSessionModal, &modal, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if len(modal) > 0 {
		d.log.Warnw("previous tiny session detected, taking over")
		if err := chromedp.Run(runCtx, chromedp.MouseClickNode(modal[0]), chromedp.Sleep(2*time.Second)); err != nil {
			return nil, err
		}
	}

	var raw []*network.Cookie
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	cookies := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}
