// Package prompts supplies the prompt templates used for extraction and
// judging. Templates are looked up by logical name, loaded lazily and
// memoized for the process lifetime; they are treated as immutable so no
// invalidation exists. Defaults are embedded in the binary and can be
// overridden by files in a directory.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

//go:embed templates/*.txt
var defaultTemplates embed.FS

var (
	// ErrPromptNotFound is returned when a template name resolves to
	// neither an override file nor an embedded default.
	ErrPromptNotFound = errors.New("prompts: template not found")

	// ErrUnknownDocumentType is returned for document types without an
	// extraction template.
	ErrUnknownDocumentType = errors.New("prompts: unknown document type")
)

// Template names used by the harness.
const (
	OCRExtractionReport   = "ocr_extraction_report"
	OCRExtractionMedicine = "ocr_extraction_medicine"
	JudgeOCRQuality       = "judge_ocr_quality"
	JudgeComparison       = "judge_comparison"
)

// Loader resolves prompt templates by name. The zero value is not usable;
// construct with NewLoader.
type Loader struct {
	dir string // optional override directory; may be empty

	mu    sync.Mutex
	cache map[string]string
}

// NewLoader creates a Loader. dir may be empty, in which case only the
// embedded defaults are used; otherwise <dir>/<name>.txt takes precedence.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]string)}
}

// Load returns the template text for the given logical name.
func (l *Loader) Load(name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if text, ok := l.cache[name]; ok {
		return text, nil
	}

	text, err := l.read(name)
	if err != nil {
		return "", err
	}
	l.cache[name] = text
	return text, nil
}

func (l *Loader) read(name string) (string, error) {
	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, name+".txt"))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("reading prompt %s: %w", name, err)
		}
	}

	data, err := defaultTemplates.ReadFile("templates/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}
	return string(data), nil
}

// OCRExtractionPrompt returns the extraction template for a document type.
// Known types are "report" (lab reports) and "medicine" (drug packaging).
func (l *Loader) OCRExtractionPrompt(documentType string) (string, error) {
	switch documentType {
	case "report":
		return l.Load(OCRExtractionReport)
	case "medicine":
		return l.Load(OCRExtractionMedicine)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDocumentType, documentType)
	}
}
