// Package ingest turns corpus files into chunks: extract text, normalize
// whitespace, split into overlapping windows, attach source metadata.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
)

// Ingester walks corpus paths and produces chunks.
type Ingester struct {
	extractor  *extract.Extractor
	chunker    *Chunker
	extensions map[string]bool
	logger     *zap.Logger
}

// New creates an ingester from cfg.
func New(cfg *config.IngestConfig, logger *zap.Logger) *Ingester {
	extensions := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = true
	}
	return &Ingester{
		extractor:  extract.NewExtractor(),
		chunker:    NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		extensions: extensions,
		logger:     logger,
	}
}

// IngestPaths ingests every supported file under the given paths
// (directories are walked recursively). A file that fails extraction is
// logged and skipped; an entire corpus yielding zero chunks is an error,
// since serving queries against an empty knowledge base helps nobody.
func (i *Ingester) IngestPaths(paths []string) ([]*models.Chunk, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != p {
					return filepath.SkipDir
				}
				return nil
			}
			if i.supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}

	var chunks []*models.Chunk
	for _, file := range files {
		fileChunks, err := i.IngestFile(file)
		if err != nil {
			i.logger.Warn("skipping file", zap.String("path", file), zap.Error(err))
			continue
		}
		chunks = append(chunks, fileChunks...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingestion produced no chunks from %d paths", len(paths))
	}
	return chunks, nil
}

// IngestFile extracts and chunks a single file.
func (i *Ingester) IngestFile(path string) ([]*models.Chunk, error) {
	text, err := i.extractor.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	text = Normalize(text)
	if text == "" {
		return nil, fmt.Errorf("no text in %s", path)
	}
	docID := docIDFromPath(path)
	chunks := i.chunker.Chunk(docID, filepath.Base(path), text)
	i.logger.Debug("ingested file",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)))
	return chunks, nil
}

func (i *Ingester) supported(path string) bool {
	return i.extensions[strings.ToLower(filepath.Ext(path))]
}

// docIDFromPath derives a stable document ID from the file name.
func docIDFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// Normalize trims and collapses whitespace runs into single spaces.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
