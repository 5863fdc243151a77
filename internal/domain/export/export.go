// Package export packages the current composition as a standalone HTML file.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/compose"
	"github.com/GriffinCanCode/PenEditor/backend/internal/domain/fragment"
)

// FilePrefix is the fixed part of every export filename
const FilePrefix = "PenEditor-"

// Encoding selects optional compression of the artifact
type Encoding string

const (
	Identity Encoding = ""
	Gzip     Encoding = "gzip"
	Zstd     Encoding = "zstd"
)

var ErrUnknownEncoding = errors.New("unknown export encoding")

// ParseEncoding maps a query value to an Encoding
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case Identity, "identity", "none":
		return Identity, nil
	case Gzip, "gz":
		return Gzip, nil
	case Zstd, "zst":
		return Zstd, nil
	}
	return Identity, fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
}

// Artifact is a downloadable export
type Artifact struct {
	Filename    string
	ContentType string
	Encoding    Encoding
	Body        []byte
}

// Exporter builds artifacts. Now is the clock used for filenames.
type Exporter struct {
	Composer *compose.Composer
	Now      func() time.Time
}

// New creates an exporter with the wall clock
func New(composer *compose.Composer) *Exporter {
	if composer == nil {
		composer = compose.New(compose.DefaultOptions())
	}
	return &Exporter{Composer: composer, Now: time.Now}
}

// Export composes the standalone document
func (e *Exporter) Export(set fragment.Set, libraries []string) Artifact {
	doc := []byte(e.Composer.Compose(set, libraries, compose.Standalone))
	return Artifact{
		Filename:    Filename(e.Now()),
		ContentType: mimetype.Detect(doc).String(),
		Body:        doc,
	}
}

// ExportEncoded composes the standalone document and compresses it
func (e *Exporter) ExportEncoded(set fragment.Set, libraries []string, encoding Encoding) (Artifact, error) {
	artifact := e.Export(set, libraries)

	var buf bytes.Buffer
	switch encoding {
	case Identity:
		return artifact, nil
	case Gzip:
		w := gzip.NewWriter(&buf)
		w.Name = artifact.Filename
		if _, err := w.Write(artifact.Body); err != nil {
			return Artifact{}, fmt.Errorf("gzip export: %w", err)
		}
		if err := w.Close(); err != nil {
			return Artifact{}, fmt.Errorf("gzip export: %w", err)
		}
		artifact.Filename += ".gz"
	case Zstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return Artifact{}, fmt.Errorf("zstd export: %w", err)
		}
		if _, err := w.Write(artifact.Body); err != nil {
			return Artifact{}, fmt.Errorf("zstd export: %w", err)
		}
		if err := w.Close(); err != nil {
			return Artifact{}, fmt.Errorf("zstd export: %w", err)
		}
		artifact.Filename += ".zst"
	default:
		return Artifact{}, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}

	artifact.Body = buf.Bytes()
	artifact.ContentType = mimetype.Detect(artifact.Body).String()
	artifact.Encoding = encoding
	return artifact, nil
}

// Filename returns the export name for t
func Filename(t time.Time) string {
	return fmt.Sprintf("%s%d.html", FilePrefix, t.UnixMilli())
}
