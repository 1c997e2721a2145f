// Package extract converts raw documents (pdf, docx, txt) into plain text.
package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/WessleyAI/nlq-engine/engine/domain"
)

// Kind is a supported document kind, derived from the file extension.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
	KindTXT  Kind = "txt"
)

// Document is the plain-text form of a source file.
type Document struct {
	Path string
	Name string
	Kind Kind
	Text string
}

// KindOf maps a path to its document kind by extension.
func KindOf(path string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	case ".txt":
		return KindTXT, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
}

// Supported reports whether path has an extension Extract accepts.
func Supported(path string) bool {
	_, err := KindOf(path)
	return err == nil
}

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Extractor turns files into Documents. The zero value is not usable; call New.
type Extractor struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRunner replaces the command runner used for pdftotext.
func WithRunner(r CommandRunner) Option {
	return func(e *Extractor) { e.runner = r }
}

// WithLookPath replaces exec.LookPath, mainly for tests.
func WithLookPath(f func(string) (string, error)) Option {
	return func(e *Extractor) { e.lookPath = f }
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{runner: execRunner{}, lookPath: exec.LookPath}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract reads the file at path and returns its plain text.
func (e *Extractor) Extract(ctx context.Context, path string) (Document, error) {
	kind, err := KindOf(path)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Path: path, Name: filepath.Base(path), Kind: kind}

	switch kind {
	case KindTXT:
		doc.Text, err = readText(path)
	case KindDOCX:
		doc.Text, err = readDOCX(path)
	case KindPDF:
		doc.Text, err = e.readPDF(ctx, path)
	}
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrExtraction, filepath.Base(path), err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrExtraction, filepath.Base(path))
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
