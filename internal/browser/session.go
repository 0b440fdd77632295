// Package browser drives one headless Chrome tab through chromedp. It opens
// infinitely scrolling search feeds for pagination and renders profile pages
// for classification.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	// DefaultCardSelector matches the user link of each search result card.
	DefaultCardSelector = "a[data-e2e^='search-card-user-link']"
)

// Config controls the browser session.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	// FeedSettle is waited after a feed page is ready, before discovery starts.
	FeedSettle time.Duration
	// ProfileSettle is waited after a profile page is ready, before its DOM is read.
	ProfileSettle    time.Duration
	CardSelector     string
	HandleMarker     string
	StorageStatePath string
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.CardSelector == "" {
		c.CardSelector = DefaultCardSelector
	}
	if c.HandleMarker == "" {
		c.HandleMarker = crawler.DefaultHandleMarker
	}
	return c
}

// Session implements crawler.Navigator on a single reused tab.
type Session struct {
	cfg     Config
	logger  *zap.Logger
	cookies []*network.CookieParam

	allocCancel context.CancelFunc
	tab         context.Context
	tabCancel   context.CancelFunc

	mu       sync.Mutex
	prepared bool
}

var _ crawler.Navigator = (*Session)(nil)

// NewSession creates a session. Chrome starts on the first navigation.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	var cookies []*network.CookieParam
	if cfg.StorageStatePath != "" {
		var err error
		cookies, err = LoadStorageState(cfg.StorageStatePath)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded storage state",
			zap.String("path", cfg.StorageStatePath),
			zap.Int("cookies", len(cookies)),
		)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	return &Session{
		cfg:         cfg,
		logger:      logger,
		cookies:     cookies,
		allocCancel: allocCancel,
		tab:         tab,
		tabCancel:   tabCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
}

// Close shuts the tab and the browser process down.
func (s *Session) Close() {
	s.tabCancel()
	s.allocCancel()
}

// OpenFeed navigates to a feed URL and returns its scroll driver.
func (s *Session) OpenFeed(ctx context.Context, url string) (crawler.Feed, error) {
	if err := s.navigate(ctx, url, s.cfg.FeedSettle); err != nil {
		return nil, err
	}
	return &feed{session: s, url: url}, nil
}

// FetchProfile navigates to a profile and returns its rendered document.
func (s *Session) FetchProfile(ctx context.Context, url string) (crawler.Document, error) {
	var (
		html     string
		finalURL string
	)
	err := s.navigate(ctx, url, s.cfg.ProfileSettle,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return crawler.Document{}, err
	}
	if finalURL == "" {
		finalURL = url
	}
	return crawler.Document{URL: finalURL, HTML: html}, nil
}

func (s *Session) navigate(ctx context.Context, url string, settle time.Duration, after ...chromedp.Action) error {
	actions := []chromedp.Action{
		s.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if settle > 0 {
		actions = append(actions, chromedp.Sleep(settle))
	}
	actions = append(actions, after...)

	start := time.Now()
	err := s.run(ctx, s.cfg.NavigationTimeout+settle, actions...)
	if err != nil {
		return crawler.NavigationError(fmt.Errorf("navigate %s: %w", url, err))
	}
	s.logger.Debug("navigated", zap.String("url", url), zap.Duration("duration", time.Since(start)))
	return nil
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return errors.Join(ctx.Err(), err)
	}
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(context.DeadlineExceeded, err)
	}
	return err
}

// setupAction enables the network domain and installs the user agent and
// storage-state cookies once per tab.
func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.prepared {
			return nil
		}
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(s.cookies) > 0 {
			if err := network.SetCookies(s.cookies).Do(ctx); err != nil {
				return fmt.Errorf("set cookies: %w", err)
			}
		}
		s.prepared = true
		return nil
	})
}

type feed struct {
	session *Session
	url     string
}

func (f *feed) Candidates(ctx context.Context) ([]crawler.Candidate, error) {
	var hrefs []string
	script := cardHrefsScript(f.session.cfg.CardSelector)
	if err := f.session.run(ctx, f.session.cfg.NavigationTimeout, chromedp.Evaluate(script, &hrefs)); err != nil {
		return nil, crawler.NavigationError(fmt.Errorf("read feed cards %s: %w", f.url, err))
	}
	return CandidatesFromHrefs(hrefs, f.session.cfg.HandleMarker), nil
}

func (f *feed) ScrollToBottom(ctx context.Context) error {
	if err := f.session.run(ctx, f.session.cfg.NavigationTimeout, chromedp.Evaluate(scrollScript, nil)); err != nil {
		return crawler.NavigationError(fmt.Errorf("scroll feed %s: %w", f.url, err))
	}
	return nil
}

func (f *feed) Extent(ctx context.Context) (int64, error) {
	var height float64
	if err := f.session.run(ctx, f.session.cfg.NavigationTimeout, chromedp.Evaluate(extentScript, &height)); err != nil {
		return 0, crawler.NavigationError(fmt.Errorf("measure feed %s: %w", f.url, err))
	}
	return int64(height), nil
}

const (
	scrollScript = `window.scrollTo(0, document.body.scrollHeight)`
	extentScript = `document.body.scrollHeight`
)

func cardHrefsScript(selector string) string {
	quoted, _ := json.Marshal(selector)
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(e => e.getAttribute("href") || "")`,
		quoted,
	)
}

// CandidatesFromHrefs extracts handles from card links, keeping first-seen order
// and dropping links without a handle.
func CandidatesFromHrefs(hrefs []string, marker string) []crawler.Candidate {
	out := make([]crawler.Candidate, 0, len(hrefs))
	seen := make(map[crawler.Candidate]struct{}, len(hrefs))
	for _, href := range hrefs {
		candidate, ok := crawler.HandleFromHref(href, marker)
		if !ok {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}
