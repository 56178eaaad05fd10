package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/browser"
)

// GeneratedGraphsPath is the path under the public root where the backend
// publishes rendered graphs.
const GeneratedGraphsPath = "/path/to/generated/graphs/"

// GraphURL builds the address of a generated graph. ref is used verbatim.
func GraphURL(base, ref string) string {
	return strings.TrimRight(base, "/") + GeneratedGraphsPath + ref
}

// Opener presents a URL to the user in a new browsing context.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// SetBrowserOutput sends the browser launcher's stdout and stderr to w.
// The launcher output is process-wide; call it once at startup, before any
// BrowserOpener is used.
func SetBrowserOutput(w io.Writer) {
	browser.Stdout = w
	browser.Stderr = w
}

// BrowserOpener opens URLs in the system browser. It holds no state and is
// safe for concurrent use.
type BrowserOpener struct{}

// Open launches the system browser.
func (BrowserOpener) Open(_ context.Context, url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}
	return nil
}

// NopOpener discards URLs. Headless deployments use it.
type NopOpener struct{}

// Open does nothing.
func (NopOpener) Open(context.Context, string) error { return nil }
