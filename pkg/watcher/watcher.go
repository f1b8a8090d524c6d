package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrContainerNotFound is returned by Start when the container cannot be resolved.
var ErrContainerNotFound = errors.New("notification container not found")

// Element is one rendered notification entry
type Element interface {
	Text() (string, error)
}

// Container is the root of the region notifications are rendered under
type Container interface {
	// Elements returns every descendant matching selector, in document order.
	Elements(selector string) ([]Element, error)
}

// Locator resolves the container each time it is called.
// A nil Container with a nil error means the container is gone.
type Locator interface {
	Locate(ctx context.Context) (Container, error)
}

// LocatorFunc adapts a plain function to Locator
type LocatorFunc func(ctx context.Context) (Container, error)

// Locate calls f
func (f LocatorFunc) Locate(ctx context.Context) (Container, error) {
	return f(ctx)
}

// Watcher tracks how many notifications it has seen inside a container and
// logs the newest one whenever that number grows.
type Watcher struct {
	locator  Locator
	selector string
	log      logrus.FieldLogger

	mu   sync.Mutex
	seen int
}

// New creates a watcher for elements matching selector under the located container
func New(locator Locator, selector string, log logrus.FieldLogger) *Watcher {
	return &Watcher{
		locator:  locator,
		selector: selector,
		log:      log.WithField("selector", selector),
	}
}

// Seen returns the highest number of matching elements observed so far
func (w *Watcher) Seen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen
}

// Start records the notifications already on the page and logs each of them
// as the baseline.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	container, err := w.locator.Locate(ctx)
	if err != nil {
		return fmt.Errorf("failed to locate container: %w", err)
	}
	if container == nil {
		return ErrContainerNotFound
	}

	elements, err := container.Elements(w.selector)
	if err != nil {
		return fmt.Errorf("failed to query notifications: %w", err)
	}

	w.seen = len(elements)
	w.log.WithField("count", w.seen).Info("Watching notifications")

	for i, el := range elements {
		text, err := el.Text()
		if err != nil {
			w.log.WithError(err).WithField("index", i).Warn("Failed to read notification text")
			continue
		}
		w.log.WithField("index", i).Infof("Existing notification: %s", text)
	}

	return nil
}

// Check re-scans the container and logs the last matching element if the
// number of matches has grown past the seen count. Removals followed by
// additions that do not exceed the previous maximum go unreported.
func (w *Watcher) Check(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	container, err := w.locator.Locate(ctx)
	if err != nil {
		w.log.WithError(err).Warn("Failed to locate notification container")
		return
	}
	if container == nil {
		w.log.Warn("Notification container not found")
		return
	}

	elements, err := container.Elements(w.selector)
	if err != nil {
		w.log.WithError(err).Warn("Failed to query notifications")
		return
	}

	count := len(elements)
	if count <= w.seen {
		return
	}
	w.seen = count

	last := count - 1
	text, err := elements[last].Text()
	if err != nil {
		w.log.WithError(err).WithField("index", last).Warn("Failed to read notification text")
		return
	}
	w.log.WithField("index", last).Infof("New notification: %s", text)
}

// Run subscribes to source, checks once for anything added while the
// subscription was being set up, then checks once per delivered batch. It
// returns when the subscription channel closes or ctx is done.
func (w *Watcher) Run(ctx context.Context, source Source) error {
	batches, err := source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to changes: %w", err)
	}
	w.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				w.log.Debug("Change subscription closed")
				return nil
			}
			w.log.WithField("records", batch.Records).Debug("Change batch received")
			w.Check(ctx)
		}
	}
}
