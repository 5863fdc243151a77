package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestComposeFlavors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		notWant string
	}{
		{"standalone by default", []string{"compose"}, "hello from the preview", "/static/relay.js"},
		{"preview", []string{"compose", "--preview"}, "/static/relay.js", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
			assert.Contains(t, out, tt.want)
			if tt.notWant != "" {
				assert.NotContains(t, out, tt.notWant)
			}
		})
	}
}

func TestComposeFromStarterFile(t *testing.T) {
	dir := t.TempDir()
	starter := filepath.Join(dir, "card.yaml")
	require.NoError(t, os.WriteFile(starter, []byte("markup: <section>card</section>\n"), 0o644))
	output := filepath.Join(dir, "out.html")

	_, err := execute(t, "compose", "--starter", starter, "-o", output)
	require.NoError(t, err)

	doc, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "<section>card</section>")
}

func TestExportWritesArtifact(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "export", "--compress", "gzip", "--dir", dir)
	require.NoError(t, err)

	path := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "PenEditor-"))
	assert.True(t, strings.HasSuffix(path, ".html.gz"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	var doc bytes.Buffer
	_, err = doc.ReadFrom(zr)
	require.NoError(t, err)
	assert.Contains(t, doc.String(), "hello from the preview")
}

func TestExportRejectsUnknownCompression(t *testing.T) {
	_, err := execute(t, "export", "--compress", "brotli", "--dir", t.TempDir())
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}
