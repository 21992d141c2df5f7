package source

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeRenderer loads pages in headless Chrome so listings built by JavaScript can be parsed.
type ChromeRenderer struct {
	allowed []string
	wait    time.Duration
	opts    []chromedp.ExecAllocatorOption
}

// NewChromeRenderer creates a renderer. wait is an extra settle delay after the body is ready.
func NewChromeRenderer(allowed []string, wait time.Duration) *ChromeRenderer {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.UserAgent(userAgent),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	return &ChromeRenderer{allowed: allowed, wait: wait, opts: opts}
}

func (r *ChromeRenderer) Load(ctx context.Context, url string) (Page, error) {
	if err := CheckURL(url, r.allowed); err != nil {
		return Page{}, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var html, location string
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if r.wait > 0 {
		actions = append(actions, chromedp.Sleep(r.wait))
	}
	actions = append(actions,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return Page{}, fmt.Errorf("failed to render %s: %w", url, err)
	}
	if location == "" {
		location = url
	}
	return Page{URL: location, ContentType: "text/html", Body: []byte(html)}, nil
}
