package compose

import (
	"html"
	"strings"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
)

// Flavor selects the document variant
type Flavor int

const (
	Preview Flavor = iota
	Standalone
)

func (f Flavor) String() string {
	switch f {
	case Preview:
		return "preview"
	case Standalone:
		return "standalone"
	default:
		return "unknown"
	}
}

// ResetBlock is always emitted ahead of the style fragment
const ResetBlock = `html {
	width: 100%;
	height: 100%;
}
body {
	width: 100%;
	height: 100%;
	margin: 0;
}`

// Options configures the preview-only parts of the document
type Options struct {
	IsolationStylesheet string // href of the base stylesheet
	RelayScript         string // src of the console relay shim
	ScriptType          string // type attribute marking the script for the transpiler
	ScriptPresets       string // data-presets for the transpiler
}

// DefaultOptions matches the static assets served by the backend
func DefaultOptions() Options {
	return Options{
		IsolationStylesheet: "/static/view.css",
		RelayScript:         "/static/relay.js",
		ScriptType:          "text/babel",
		ScriptPresets:       "react",
	}
}

// Composer builds documents. The zero value is not usable; use New.
type Composer struct {
	opts Options
}

// New creates a composer
func New(opts Options) *Composer {
	return &Composer{opts: opts}
}

var defaultComposer = New(DefaultOptions())

// Compose builds a document with the default options
func Compose(set fragment.Set, libraries []string, flavor Flavor) string {
	return defaultComposer.Compose(set, libraries, flavor)
}

// Compose builds the document for flavor
func (c *Composer) Compose(set fragment.Set, libraries []string, flavor Flavor) string {
	var b strings.Builder
	b.Grow(len(ResetBlock) + len(set.Text(fragment.Markup)) + len(set.Text(fragment.Style)) + len(set.Text(fragment.Script)) + 512)

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>")
	b.WriteString(`<meta charset="utf-8">`)
	if flavor == Preview {
		c.writePreviewHead(&b)
	}
	writeStyle(&b, set.Text(fragment.Style))
	b.WriteString("</head>\n<body>")

	b.WriteString(set.Text(fragment.Markup))
	for _, url := range libraries {
		b.WriteString(LibraryTag(url))
	}

	if flavor == Preview {
		b.WriteString(`<script type="`)
		b.WriteString(html.EscapeString(c.opts.ScriptType))
		b.WriteString(`" data-presets="`)
		b.WriteString(html.EscapeString(c.opts.ScriptPresets))
		b.WriteString(`">`)
	} else {
		b.WriteString("<script>")
	}
	b.WriteString(set.Text(fragment.Script))
	b.WriteString("</script></body>\n</html>\n")

	return b.String()
}

// HeadStyles is the head content injected after the document write: the
// isolation stylesheet first, then the same style block the document carries.
func (c *Composer) HeadStyles(style string) string {
	var b strings.Builder
	c.writeIsolation(&b)
	writeStyle(&b, style)
	return b.String()
}

// LibraryTag renders one script-inclusion tag. The URL is attribute-escaped only.
func LibraryTag(url string) string {
	return `<script src="` + html.EscapeString(url) + `"></script>`
}

func (c *Composer) writePreviewHead(b *strings.Builder) {
	c.writeIsolation(b)
	if c.opts.RelayScript != "" {
		b.WriteString(LibraryTag(c.opts.RelayScript))
	}
}

func (c *Composer) writeIsolation(b *strings.Builder) {
	if c.opts.IsolationStylesheet == "" {
		return
	}
	b.WriteString(`<link rel="stylesheet" href="`)
	b.WriteString(html.EscapeString(c.opts.IsolationStylesheet))
	b.WriteString(`">`)
}

func writeStyle(b *strings.Builder, style string) {
	b.WriteString("<style>")
	b.WriteString(ResetBlock)
	b.WriteString("\n")
	b.WriteString(style)
	b.WriteString("</style>")
}
