package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "en-IN", opts.Locale)
	assert.NotContains(t, opts.ExtraHeaders, "Accept-Encoding")
}

func TestContextOptionsMergesLanguage(t *testing.T) {
	opts := DefaultOptions()
	opts.AcceptLanguage = "de-DE,de;q=0.9"

	ctxOpts := contextOptions(opts)

	assert.Equal(t, "de-DE,de;q=0.9", ctxOpts.ExtraHttpHeaders["Accept-Language"])
	assert.Equal(t, "max-age=0", ctxOpts.ExtraHttpHeaders["Cache-Control"])
	assert.Equal(t, opts.UserAgent, *ctxOpts.UserAgent)
	assert.Equal(t, 1920, ctxOpts.Viewport.Width)
	_, mutated := opts.ExtraHeaders["Accept-Language"]
	assert.False(t, mutated)
}
