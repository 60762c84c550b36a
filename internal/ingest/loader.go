// Package ingest builds and deletes the two retrieval indexes from a data
// directory: manuals (PDF, Markdown, plain text) go into the keyword index
// and question/answer CSV rows go into the vector collection.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/helpdesk/internal/fulltext"
	"github.com/fyrsmithlabs/helpdesk/internal/ignore"
	"github.com/fyrsmithlabs/helpdesk/internal/vectorstore"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// Default chunking for manuals.
const (
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 20
)

var manualExtensions = map[string]bool{".pdf": true, ".md": true, ".txt": true}

// IsManual reports whether path has a manual extension.
func IsManual(path string) bool {
	return manualExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsQA reports whether path is a question/answer CSV file.
func IsQA(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

// NewSplitter returns the recursive character splitter used for manuals.
// Non-positive values select the defaults.
func NewSplitter(chunkSize, chunkOverlap int) textsplitter.TextSplitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
}

// findFiles walks dir recursively and returns the files accepted by match,
// relative to dir and sorted. Paths excluded by the directory's ignore file
// are skipped.
func findFiles(dir string, match func(string) bool) ([]string, error) {
	skip, err := ignore.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var out []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel != "." && skip.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !match(path) {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

// LoadManuals loads and chunks every manual under dir. Chunk IDs are
// "<relative path>#<n>" so reindexing the same file overwrites its chunks.
func LoadManuals(ctx context.Context, dir string, splitter textsplitter.TextSplitter) ([]fulltext.Document, int, error) {
	files, err := findFiles(dir, IsManual)
	if err != nil {
		return nil, 0, err
	}

	var docs []fulltext.Document
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		chunks, err := loadManual(ctx, filepath.Join(dir, filepath.FromSlash(rel)), splitter)
		if err != nil {
			return nil, 0, fmt.Errorf("loading %s: %w", rel, err)
		}
		for i, c := range chunks {
			content := strings.TrimSpace(c.PageContent)
			if content == "" {
				continue
			}
			docs = append(docs, fulltext.Document{
				ID:       fmt.Sprintf("%s#%d", rel, i),
				FileName: filepath.Base(rel),
				Content:  content,
			})
		}
	}
	return docs, len(files), nil
}

func loadManual(ctx context.Context, path string, splitter textsplitter.TextSplitter) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return documentloaders.NewPDF(f, info.Size()).LoadAndSplit(ctx, splitter)
	}
	return documentloaders.NewText(f).LoadAndSplit(ctx, splitter)
}

// LoadQA loads every CSV row under dir as one document. The row is
// rendered as "column: value" lines. IDs are "<relative path>#row<n>".
func LoadQA(ctx context.Context, dir string) ([]vectorstore.Document, int, error) {
	files, err := findFiles(dir, IsQA)
	if err != nil {
		return nil, 0, err
	}

	var docs []vectorstore.Document
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		rows, err := loadCSV(ctx, filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, 0, fmt.Errorf("loading %s: %w", rel, err)
		}
		for i, row := range rows {
			content := strings.TrimSpace(row.PageContent)
			if content == "" {
				continue
			}
			docs = append(docs, vectorstore.Document{
				ID:      fmt.Sprintf("%s#row%d", rel, i),
				Content: content,
				Metadata: map[string]interface{}{
					vectorstore.PayloadFileName: filepath.Base(rel),
				},
			})
		}
	}
	return docs, len(files), nil
}

func loadCSV(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return documentloaders.NewCSV(f).Load(ctx)
}
