// Package dataset locates evaluation images on disk: random sampling from
// a dataset directory, document-type detection from the path, and
// extraction of embedded OCR text layers from scanned PDFs as auxiliary
// reference material.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"path/filepath"
	"strings"
)

// ErrNoImages is returned when a sample directory contains no image files.
var ErrNoImages = errors.New("dataset: no images found")

// Image is one sampled evaluation input.
type Image struct {
	Path         string `json:"path"`
	DocumentType string `json:"document_type"`
}

// imageExtensions are the file types treated as scanned document images.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// DetectDocumentType infers the document type from the file path. The
// datasets keep medicine photos under directories named with "medicine" or
// the Chinese 药品; everything else is a lab report.
func DetectDocumentType(path string) string {
	if strings.Contains(path, "medicine") || strings.Contains(path, "药品") {
		return "medicine"
	}
	return "report"
}

// Sample walks dir recursively, collects image files, and returns up to n
// of them in random order. rng may be nil for an unseeded source; tests
// pass a seeded one for determinism. n <= 0 returns all images shuffled.
func Sample(dir string, n int, rng *rand.Rand) ([]Image, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking dataset dir: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}

	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(paths), func(i, j int) {
		paths[i], paths[j] = paths[j], paths[i]
	})

	if n > 0 && n < len(paths) {
		paths = paths[:n]
	}

	images := make([]Image, len(paths))
	for i, p := range paths {
		images[i] = Image{Path: p, DocumentType: DetectDocumentType(p)}
	}
	return images, nil
}
