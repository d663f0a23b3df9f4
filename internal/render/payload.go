// Package render turns task payloads into PDF bytes using the
// supervised Chrome backend over the DevTools protocol.
package render

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// ChromePayload describes one PDF rendering request. Exactly one of URL
// or HTML must be set; HTML is loaded through a data URL.
type ChromePayload struct {
	URL  string `json:"url,omitempty"`
	HTML string `json:"html,omitempty"`

	// Title is document metadata carried for correlation; Chrome takes
	// the printed title from the page itself.
	Title string `json:"title,omitempty"`

	// Media emulates a CSS media type ("screen" or "print") before
	// printing. Empty leaves Chrome's default.
	Media string `json:"media,omitempty"`

	// Format names a paper size (Letter, Legal, A4, ...). Ignored when
	// both Width and Height are set. Unknown names fall back to A4.
	Format string  `json:"format,omitempty"`
	Width  float64 `json:"width,omitempty"`  // inches
	Height float64 `json:"height,omitempty"` // inches

	MarginTop    float64 `json:"marginTop,omitempty"`
	MarginRight  float64 `json:"marginRight,omitempty"`
	MarginBottom float64 `json:"marginBottom,omitempty"`
	MarginLeft   float64 `json:"marginLeft,omitempty"`

	Landscape       bool   `json:"landscape,omitempty"`
	PrintBackground bool   `json:"printBackground,omitempty"`
	PageRanges      string `json:"pageRanges,omitempty"`

	// Header and footer templates. Setting either turns the
	// header/footer band on.
	HeaderTemplate string `json:"headerTemplate,omitempty"`
	FooterTemplate string `json:"footerTemplate,omitempty"`
}

// Identity derives a stable deduplication key from the payload
// contents. Two structurally identical payloads share one identity.
func (p *ChromePayload) Identity() string {
	raw, err := json.Marshal(p)
	if err != nil {
		// Marshal of a plain struct cannot fail; keep a fallback anyway.
		raw = []byte(p.URL + p.HTML)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}

// printOptions maps the payload onto DevTools Page.printToPDF
// parameters.
func (p *ChromePayload) printOptions() *proto.PagePrintToPDF {
	opts := &proto.PagePrintToPDF{
		PrintBackground: p.PrintBackground,
		Landscape:       p.Landscape,
		MarginTop:       floatPtr(p.MarginTop),
		MarginRight:     floatPtr(p.MarginRight),
		MarginBottom:    floatPtr(p.MarginBottom),
		MarginLeft:      floatPtr(p.MarginLeft),
	}

	if p.PageRanges != "" {
		opts.PageRanges = p.PageRanges
	}
	if p.HeaderTemplate != "" || p.FooterTemplate != "" {
		opts.DisplayHeaderFooter = true
		opts.HeaderTemplate = p.HeaderTemplate
		opts.FooterTemplate = p.FooterTemplate
		if opts.HeaderTemplate == "" {
			opts.HeaderTemplate = "<span></span>"
		}
		if opts.FooterTemplate == "" {
			opts.FooterTemplate = "<span></span>"
		}
	}

	// Explicit dimensions win; otherwise the named format decides.
	if p.Width > 0 && p.Height > 0 {
		opts.PaperWidth = floatPtr(p.Width)
		opts.PaperHeight = floatPtr(p.Height)
	} else {
		w, h := paperSize(p.Format)
		opts.PaperWidth = floatPtr(w)
		opts.PaperHeight = floatPtr(h)
	}

	return opts
}

// paperSize returns a named format's dimensions in inches. Unknown or
// empty names default to A4.
func paperSize(format string) (width, height float64) {
	switch strings.ToUpper(format) {
	case "LETTER":
		return 8.5, 11.0
	case "LEGAL":
		return 8.5, 14.0
	case "TABLOID":
		return 11.0, 17.0
	case "LEDGER":
		return 17.0, 11.0
	case "A0":
		return 33.1, 46.8
	case "A1":
		return 23.4, 33.1
	case "A2":
		return 16.5, 23.4
	case "A3":
		return 11.7, 16.5
	case "A4":
		return 8.27, 11.7
	case "A5":
		return 5.83, 8.27
	case "A6":
		return 4.13, 5.83
	default:
		return 8.27, 11.7
	}
}

func floatPtr(f float64) *float64 {
	return &f
}
