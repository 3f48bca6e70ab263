package extract

import (
	"fmt"
	"os"

	"github.com/lu4p/cat"
)

// extractWithCat extracts ODT and RTF text via lu4p/cat. Its API is
// path-based, so the bytes are staged in a temp file first.
func extractWithCat(content []byte, ext string) (string, error) {
	tmp, err := os.CreateTemp("", "kotae-extract-*"+ext)
	if err != nil {
		return "", fmt.Errorf("extract %s: temp file: %w", ext, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("extract %s: write temp: %w", ext, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("extract %s: close temp: %w", ext, err)
	}

	text, err := cat.File(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}
	return text, nil
}
