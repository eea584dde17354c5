package file

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	"vexa/repository"
)

// ErrUnsupportedType is returned for a file extension no extractor handles.
var ErrUnsupportedType = errors.New("file: unsupported file type")

// Extraction is plain text pulled from one file, ready for ingestion.
type Extraction struct {
	Title      string
	Text       string
	SourceType repository.SourceType
}

// Extractor maps a file's raw bytes to plain text. Implementations declare
// which extensions they handle.
type Extractor interface {
	Supports(ext string) bool
	Extract(name string, data []byte) (*Extraction, error)
}

// Registry dispatches extraction by file extension.
type Registry struct {
	extractors []Extractor
}

// NewRegistry returns a registry with the built-in extractors: plain text
// (txt, md, text) and HTML.
func NewRegistry() *Registry {
	return &Registry{extractors: []Extractor{&PlainText{}, &HTML{}}}
}

func (r *Registry) Extract(name string, data []byte) (*Extraction, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, extractor := range r.extractors {
		if extractor.Supports(ext) {
			return extractor.Extract(name, data)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
}

// PlainText handles files whose bytes already are the text payload.
type PlainText struct{}

func (*PlainText) Supports(ext string) bool {
	return ext == "txt" || ext == "md" || ext == "text" || ext == ""
}

func (*PlainText) Extract(name string, data []byte) (*Extraction, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file: %s is not valid UTF-8", name)
	}
	sourceType := repository.SourceTXT
	if strings.EqualFold(filepath.Ext(name), ".md") {
		sourceType = repository.SourceMD
	}
	return &Extraction{
		Title:      strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)),
		Text:       string(data),
		SourceType: sourceType,
	}, nil
}

// HTML extracts the readable article text from an HTML document.
type HTML struct{}

func (*HTML) Supports(ext string) bool {
	return ext == "html" || ext == "htm"
}

func (*HTML) Extract(name string, data []byte) (*Extraction, error) {
	base := &url.URL{Scheme: "file", Path: "/" + filepath.ToSlash(name)}
	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return nil, fmt.Errorf("file: extract html from %s: %w", name, err)
	}
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	return &Extraction{
		Title:      title,
		Text:       strings.TrimSpace(article.TextContent),
		SourceType: repository.SourceHTML,
	}, nil
}
