package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dev/bravebird/notiwatch/pkg/config"
)

// Session is a launched browser with the single page the watcher drives
type Session struct {
	ID      string
	Browser *rod.Browser
	Page    *rod.Page

	log logrus.FieldLogger
}

// Launch starts a browser according to cfg and opens a blank page
func Launch(cfg config.BrowserConfig, log logrus.FieldLogger) (*Session, error) {
	id := uuid.New().String()
	log = log.WithField("session", id)
	log.WithField("headless", cfg.Headless).Info("Launching browser")

	l := newLauncher(cfg)
	if cfg.UserDataDir != "" {
		if err := os.MkdirAll(cfg.UserDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create user data dir: %w", err)
		}
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		err = fmt.Errorf("failed to connect to browser: %w", err)
		return nil, withCleanup(err, "kill browser", func() error {
			l.Kill()
			return nil
		})
	}

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		err = fmt.Errorf("failed to create page: %w", err)
		return nil, withCleanup(err, "close browser", browser.Close)
	}

	log.Info("Browser session created")

	return &Session{
		ID:      id,
		Browser: browser,
		Page:    page,
		log:     log,
	}, nil
}

// withCleanup runs cleanup after a failed launch step and joins its error into err
func withCleanup(err error, what string, cleanup func() error) error {
	if cleanupErr := cleanup(); cleanupErr != nil {
		return errors.Join(err, fmt.Errorf("failed to %s: %w", what, cleanupErr))
	}
	return err
}

func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New()

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	l = l.Headless(cfg.Headless)

	// the profile keeps the manual login between runs
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}

	if cfg.NoSandbox {
		l = l.Set("no-sandbox")
	}
	l = l.Set("disable-dev-shm-usage")
	l = l.Set("no-first-run")

	return l
}

// Navigate loads url and waits for the load event
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.log.WithField("url", url).Info("Navigating")

	page := s.Page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for %s to load: %w", url, err)
	}
	return nil
}

// WaitFor blocks until selector matches an element on the page or timeout passes
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	s.log.WithField("selector", selector).Debug("Waiting for element")

	if _, err := s.Page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		return fmt.Errorf("element %s did not appear: %w", selector, err)
	}
	return nil
}

// Close shuts the browser down. The user data dir is left in place.
func (s *Session) Close() error {
	s.log.Info("Closing browser session")
	if err := s.Browser.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
