package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/smazurov/pdfnode/internal/browser"
	"github.com/smazurov/pdfnode/internal/logging"
)

// Typed failures a caller can branch on.
var (
	ErrBrowserConnect = errors.New("browser connect failed")
	ErrEmptyPayload   = errors.New("payload has neither url nor html")
	ErrConversion     = errors.New("pdf conversion failed")
)

// DefaultPageTimeout bounds page load plus printing for one task.
const DefaultPageTimeout = 60 * time.Second

// ChromeRenderer renders payloads through a remote headless Chrome
// reached over the DevTools protocol. It caches one connection per
// endpoint; a restarted backend shows up as a new endpoint URL and the
// stale connection is dropped.
//
// Safe for concurrent use; rod multiplexes pages over one connection.
type ChromeRenderer struct {
	timeout time.Duration
	logger  logging.Logger

	mu      sync.Mutex
	url     string
	browser *rod.Browser
}

// ChromeOptions configures a ChromeRenderer.
type ChromeOptions struct {
	// PageTimeout bounds one page's load and print. Zero falls back to
	// DefaultPageTimeout.
	PageTimeout time.Duration

	// Logger for renderer operations. If nil, the "render" module
	// logger is used.
	Logger logging.Logger
}

// NewChromeRenderer creates a renderer with no live connection yet.
func NewChromeRenderer(opts ChromeOptions) *ChromeRenderer {
	timeout := opts.PageTimeout
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("render")
	}
	return &ChromeRenderer{timeout: timeout, logger: logger}
}

// Execute renders one payload against the given endpoint and returns
// the PDF bytes.
func (r *ChromeRenderer) Execute(ctx context.Context, endpoint browser.Endpoint, payload *ChromePayload) ([]byte, error) {
	target, err := navigationTarget(payload)
	if err != nil {
		return nil, err
	}

	b, err := r.connect(endpoint)
	if err != nil {
		return nil, err
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		// The backend may have died under us; drop the cached
		// connection so the next task reconnects.
		r.invalidate(endpoint)
		return nil, fmt.Errorf("%w: open page: %v", ErrConversion, err)
	}
	defer func() { _ = page.Close() }()

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	page = page.Timeout(timeout)

	if payload.Media != "" {
		err := proto.EmulationSetEmulatedMedia{Media: payload.Media}.Call(page)
		if err != nil {
			return nil, fmt.Errorf("%w: emulate media %q: %v", ErrConversion, payload.Media, err)
		}
	}

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: page load: %v", ErrConversion, err)
	}

	reader, err := page.PDF(payload.printOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: print: %v", ErrConversion, err)
	}
	pdf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf stream: %v", ErrConversion, err)
	}

	return pdf, nil
}

// Close drops the cached browser connection, if any. The backend
// process itself belongs to the supervisor.
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	r.url = ""
	return err
}

// connect returns a live rod connection for the endpoint, reusing the
// cached one while the endpoint is unchanged.
func (r *ChromeRenderer) connect(endpoint browser.Endpoint) (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil && r.url == endpoint.URL {
		return r.browser, nil
	}
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
		r.url = ""
	}

	wsURL, err := launcher.ResolveURL(endpoint.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrBrowserConnect, endpoint.URL, err)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	r.logger.Info("Connected to backend", "endpoint", endpoint.URL)
	r.browser = b
	r.url = endpoint.URL
	return b, nil
}

// invalidate forgets the cached connection for an endpoint.
func (r *ChromeRenderer) invalidate(endpoint browser.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.url != endpoint.URL {
		return
	}
	if r.browser != nil {
		_ = r.browser.Close()
	}
	r.browser = nil
	r.url = ""
}

// navigationTarget picks the page URL: the payload URL, or the HTML
// wrapped in a base64 data URL.
func navigationTarget(p *ChromePayload) (string, error) {
	switch {
	case p.URL != "":
		return p.URL, nil
	case p.HTML != "":
		encoded := base64.StdEncoding.EncodeToString([]byte(p.HTML))
		return "data:text/html;base64," + encoded, nil
	default:
		return "", ErrEmptyPayload
	}
}
