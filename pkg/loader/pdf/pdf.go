// Package pdf extracts plain text from PDF documents with poppler's
// pdftotext.
package pdf

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/imfgraph/pkg/cache"
	"github.com/matzehuels/imfgraph/pkg/errors"
)

// DefaultTimeout bounds a single pdftotext run.
const DefaultTimeout = 30 * time.Second

var (
	magic      = []byte("%PDF-")
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

// Extractor runs pdftotext. Concurrent requests for the same content share
// one subprocess. The zero value is not usable; call New.
type Extractor struct {
	Command string
	Timeout time.Duration

	group singleflight.Group
}

// New returns an Extractor using pdftotext from PATH.
func New() *Extractor {
	return &Extractor{Command: "pdftotext", Timeout: DefaultTimeout}
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Text returns the normalized text of a PDF.
func (e *Extractor) Text(ctx context.Context, data []byte) (string, error) {
	if !IsPDF(data) {
		return "", errors.New(errors.ErrCodeUnsupportedFile, "not a PDF document")
	}
	v, err, _ := e.group.Do(cache.Hash(data), func() (any, error) {
		return e.run(ctx, data)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// TextFile reads path and returns its text.
func (e *Extractor) TextFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", path)
		}
		return "", errors.Wrap(errors.ErrCodeExtraction, err, "read %s", path)
	}
	return e.Text(ctx, data)
}

func (e *Extractor) run(ctx context.Context, data []byte) (string, error) {
	if _, err := exec.LookPath(e.Command); err != nil {
		return "", errors.Wrap(errors.ErrCodeExtraction, err, "%s not found in PATH", e.Command)
	}

	tmpDir, err := os.MkdirTemp("", "imfgraph-pdf-")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeExtraction, err, "create temp dir")
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return "", errors.Wrap(errors.ErrCodeExtraction, err, "write temp PDF")
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Command,
		"-enc", "UTF-8",
		"-eol", "unix",
		"-nopgbrk",
		"-q",
		pdfPath,
		"-",
	)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.New(errors.ErrCodeTimeout, "%s timed out after %s", e.Command, timeout)
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeExtraction, err, "%s: %s", e.Command, bytes.TrimSpace(stderr.Bytes()))
	}

	text := Normalize(string(out))
	if text == "" {
		return "", errors.New(errors.ErrCodeExtraction, "document has no extractable text")
	}
	return text, nil
}

// Normalize trims the text and collapses runs of blank lines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	return reNewlines.ReplaceAllString(text, "\n\n")
}
