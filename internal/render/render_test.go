package render

import (
	"errors"
	"strings"
	"testing"
)

func TestPaperSize(t *testing.T) {
	tests := []struct {
		format string
		width  float64
		height float64
	}{
		{"Letter", 8.5, 11.0},
		{"LEGAL", 8.5, 14.0},
		{"tabloid", 11.0, 17.0},
		{"Ledger", 17.0, 11.0},
		{"A0", 33.1, 46.8},
		{"A3", 11.7, 16.5},
		{"A4", 8.27, 11.7},
		{"a5", 5.83, 8.27},
		{"A6", 4.13, 5.83},
		{"", 8.27, 11.7},        // default A4
		{"B5", 8.27, 11.7},      // unknown falls back to A4
	}
	for _, tt := range tests {
		w, h := paperSize(tt.format)
		if w != tt.width || h != tt.height {
			t.Errorf("paperSize(%q) = (%v, %v), want (%v, %v)", tt.format, w, h, tt.width, tt.height)
		}
	}
}

func TestPrintOptionsDefaults(t *testing.T) {
	p := &ChromePayload{HTML: "<p>hi</p>"}
	opts := p.printOptions()

	if opts.DisplayHeaderFooter {
		t.Error("header/footer enabled without templates")
	}
	if *opts.MarginTop != 0 || *opts.MarginBottom != 0 || *opts.MarginLeft != 0 || *opts.MarginRight != 0 {
		t.Error("margins default to non-zero")
	}
	if *opts.PaperWidth != 8.27 || *opts.PaperHeight != 11.7 {
		t.Errorf("paper = %vx%v, want A4", *opts.PaperWidth, *opts.PaperHeight)
	}
	if opts.PrintBackground || opts.Landscape {
		t.Error("background/landscape enabled by default")
	}
}

func TestPrintOptionsExplicitDimensionsWinOverFormat(t *testing.T) {
	p := &ChromePayload{HTML: "x", Format: "Letter", Width: 4.0, Height: 6.0}
	opts := p.printOptions()
	if *opts.PaperWidth != 4.0 || *opts.PaperHeight != 6.0 {
		t.Errorf("paper = %vx%v, want explicit 4x6", *opts.PaperWidth, *opts.PaperHeight)
	}

	// Only one dimension set: the format applies.
	p = &ChromePayload{HTML: "x", Format: "Letter", Width: 4.0}
	opts = p.printOptions()
	if *opts.PaperWidth != 8.5 || *opts.PaperHeight != 11.0 {
		t.Errorf("paper = %vx%v, want Letter", *opts.PaperWidth, *opts.PaperHeight)
	}
}

func TestPrintOptionsHeaderFooter(t *testing.T) {
	p := &ChromePayload{HTML: "x", FooterTemplate: `<span class="pageNumber"></span>`}
	opts := p.printOptions()
	if !opts.DisplayHeaderFooter {
		t.Error("footer template did not enable the header/footer band")
	}
	if opts.HeaderTemplate != "<span></span>" {
		t.Errorf("missing header not blanked: %q", opts.HeaderTemplate)
	}
	if !strings.Contains(opts.FooterTemplate, "pageNumber") {
		t.Errorf("footer template lost: %q", opts.FooterTemplate)
	}
}

func TestPrintOptionsPageRanges(t *testing.T) {
	p := &ChromePayload{HTML: "x", PageRanges: "1-3,5"}
	if got := p.printOptions().PageRanges; got != "1-3,5" {
		t.Errorf("page ranges = %q", got)
	}
}

func TestPayloadIdentity(t *testing.T) {
	a := &ChromePayload{URL: "https://example.com", Format: "A4"}
	b := &ChromePayload{URL: "https://example.com", Format: "A4"}
	c := &ChromePayload{URL: "https://example.com", Format: "Letter"}

	if a.Identity() != b.Identity() {
		t.Error("identical payloads have different identities")
	}
	if a.Identity() == c.Identity() {
		t.Error("different payloads share an identity")
	}
	titled := &ChromePayload{URL: "https://example.com", Format: "A4", Title: "report"}
	if a.Identity() == titled.Identity() {
		t.Error("title does not participate in the identity")
	}
	if len(a.Identity()) != 32 {
		t.Errorf("identity length = %d, want 32 hex chars", len(a.Identity()))
	}
}

func TestNavigationTarget(t *testing.T) {
	if got, err := navigationTarget(&ChromePayload{URL: "https://example.com"}); err != nil || got != "https://example.com" {
		t.Errorf("url target = %q, %v", got, err)
	}

	got, err := navigationTarget(&ChromePayload{HTML: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("html target: %v", err)
	}
	if !strings.HasPrefix(got, "data:text/html;base64,") {
		t.Errorf("html target = %q, want a data url", got)
	}

	// URL takes precedence when both are set.
	if got, _ := navigationTarget(&ChromePayload{URL: "https://a", HTML: "x"}); got != "https://a" {
		t.Errorf("precedence target = %q", got)
	}

	if _, err := navigationTarget(&ChromePayload{}); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("empty payload error = %v, want ErrEmptyPayload", err)
	}
}
