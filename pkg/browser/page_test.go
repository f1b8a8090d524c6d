package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/notiwatch/pkg/config"
	"dev/bravebird/notiwatch/pkg/watcher"
)

const feedHTML = `<html><body>
<div id="feed">
  <div class="row">alice liked your post</div>
  <div class="row">bob followed you</div>
</div>
</body></html>`

const appendRowJS = `(text) => {
	const row = document.createElement('div')
	row.className = 'row'
	row.textContent = text
	document.getElementById('feed').appendChild(row)
}`

// newTestSession launches a headless browser showing feedHTML. It skips the
// test when no browser is installed.
func newTestSession(t *testing.T) *Session {
	t.Helper()

	bin, found := launcher.LookPath()
	if !found {
		t.Skip("no browser executable found")
	}

	logger, _ := logtest.NewNullLogger()
	session, err := Launch(config.BrowserConfig{
		Bin:       bin,
		Headless:  true,
		NoSandbox: true,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	ctx := context.Background()
	require.NoError(t, session.Navigate(ctx, "about:blank"))
	require.NoError(t, session.Page.SetDocumentContent(feedHTML))
	require.NoError(t, session.WaitFor(ctx, "#feed", 10*time.Second))
	return session
}

func elementTexts(t *testing.T, c watcher.Container) []string {
	t.Helper()
	elements, err := c.Elements(".row")
	require.NoError(t, err)

	texts := make([]string, len(elements))
	for i, el := range elements {
		texts[i], err = el.Text()
		require.NoError(t, err)
	}
	return texts
}

func TestPageLocatorAndMutationSource(t *testing.T) {
	session := newTestSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	locator := NewPageLocator(session.Page, "#feed")
	container, err := locator.Locate(ctx)
	require.NoError(t, err)
	require.NotNil(t, container)
	assert.Equal(t, []string{"alice liked your post", "bob followed you"}, elementTexts(t, container))

	logger, _ := logtest.NewNullLogger()
	source := NewMutationSource(session.Page, "#feed", logger)
	batches, err := source.Subscribe(ctx)
	require.NoError(t, err)

	_, err = source.Subscribe(ctx)
	assert.Error(t, err, "second subscription")

	_, err = session.Page.Eval(appendRowJS, "carol replied")
	require.NoError(t, err)

	select {
	case batch, ok := <-batches:
		require.True(t, ok)
		assert.GreaterOrEqual(t, batch.Records, 1)
	case <-ctx.Done():
		t.Fatal("no change batch after appending a row")
	}

	container, err = locator.Locate(ctx)
	require.NoError(t, err)
	require.NotNil(t, container)
	assert.Equal(t, []string{"alice liked your post", "bob followed you", "carol replied"}, elementTexts(t, container))

	_, err = session.Page.Eval(`() => document.getElementById('feed').remove()`)
	require.NoError(t, err)

	container, err = locator.Locate(ctx)
	require.NoError(t, err)
	assert.Nil(t, container)

	require.NoError(t, source.Close())
	for range batches {
	}
}

func TestMutationSourceMissingContainer(t *testing.T) {
	session := newTestSession(t)
	logger, _ := logtest.NewNullLogger()

	source := NewMutationSource(session.Page, "#nowhere", logger)
	_, err := source.Subscribe(context.Background())

	require.ErrorIs(t, err, watcher.ErrContainerNotFound)
	require.NoError(t, source.Close())
}
