package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"dev/bravebird/notiwatch/pkg/watcher"
)

// PageLocator finds the notification container on a page by selector.
// It never waits: a missing container is reported right away.
type PageLocator struct {
	page     *rod.Page
	selector string
}

// NewPageLocator returns a locator for the container matching selector on page
func NewPageLocator(page *rod.Page, selector string) *PageLocator {
	return &PageLocator{page: page, selector: selector}
}

// Locate implements watcher.Locator
func (l *PageLocator) Locate(ctx context.Context) (watcher.Container, error) {
	has, el, err := l.page.Context(ctx).Has(l.selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", l.selector, err)
	}
	if !has {
		return nil, nil
	}
	return elementContainer{el: el}, nil
}

type elementContainer struct {
	el *rod.Element
}

func (c elementContainer) Elements(selector string) ([]watcher.Element, error) {
	found, err := c.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return toElements(found), nil
}

func toElements(found rod.Elements) []watcher.Element {
	elements := make([]watcher.Element, len(found))
	for i, el := range found {
		elements[i] = el
	}
	return elements
}
