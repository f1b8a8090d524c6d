package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dev/bravebird/notiwatch/pkg/watcher"
)

// observeJS attaches a MutationObserver to the container and reports the size
// of every record batch through the runtime binding.
const observeJS = `(selector, binding, key) => {
	const root = document.querySelector(selector)
	if (!root) return false
	const observer = new MutationObserver((records) => {
		window[binding](String(records.length))
	})
	observer.observe(root, { childList: true, subtree: true })
	window[key] = observer
	return true
}`

const disconnectJS = `(key) => {
	const observer = window[key]
	if (observer) {
		observer.disconnect()
		delete window[key]
	}
}`

// MutationSource is a watcher.Source backed by a MutationObserver running in
// the page.
type MutationSource struct {
	page     *rod.Page
	selector string
	log      logrus.FieldLogger

	mu      sync.Mutex
	binding string
	key     string
	cancel  context.CancelFunc
}

// NewMutationSource returns a source observing the container matching selector
func NewMutationSource(page *rod.Page, selector string, log logrus.FieldLogger) *MutationSource {
	return &MutationSource{
		page:     page,
		selector: selector,
		log:      log.WithField("container", selector),
	}
}

// Subscribe implements watcher.Source. Only one subscription may be active.
func (s *MutationSource) Subscribe(ctx context.Context) (<-chan watcher.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil, errors.New("mutation source already subscribed")
	}

	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	binding := "__notiwatchChanged_" + suffix
	key := "__notiwatchObserver_" + suffix

	if err := (proto.RuntimeAddBinding{Name: binding}).Call(s.page); err != nil {
		return nil, fmt.Errorf("failed to add runtime binding: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	batches := make(chan watcher.Batch, 1)

	// subscribe before the observer exists so no batch is lost
	wait := s.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != binding {
			return
		}
		if !deliver(batches, parseBatch(e.Payload)) {
			s.log.Debug("Change batch coalesced")
		}
	})

	res, err := s.page.Context(ctx).Eval(observeJS, s.selector, binding, key)
	if err == nil && !res.Value.Bool() {
		err = watcher.ErrContainerNotFound
	}
	if err != nil {
		cancel()
		_ = proto.RuntimeRemoveBinding{Name: binding}.Call(s.page)
		return nil, fmt.Errorf("failed to install mutation observer: %w", err)
	}

	go func() {
		wait()
		close(batches)
	}()

	s.binding = binding
	s.key = key
	s.cancel = cancel
	s.log.Debug("Mutation observer installed")

	return batches, nil
}

// Close disconnects the observer, removes the binding and ends the subscription
func (s *MutationSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil

	var errs []error
	if _, err := s.page.Eval(disconnectJS, s.key); err != nil {
		errs = append(errs, fmt.Errorf("failed to disconnect observer: %w", err))
	}
	if err := (proto.RuntimeRemoveBinding{Name: s.binding}).Call(s.page); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove runtime binding: %w", err))
	}
	return errors.Join(errs...)
}

// parseBatch reads the record count sent by observeJS. Unparseable payloads
// still count as one change.
func parseBatch(payload string) watcher.Batch {
	n, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil || n < 1 {
		n = 1
	}
	return watcher.Batch{Records: n}
}

// deliver hands b to the channel unless a batch is already pending.
func deliver(ch chan watcher.Batch, b watcher.Batch) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}
