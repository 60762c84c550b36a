package vectorstore

import (
	"fmt"
	"regexp"
)

// Payload keys written for every QA document.
const (
	PayloadID       = "id"
	PayloadContent  = "content"
	PayloadFileName = "file_name"
)

// Document is one question/answer row to be stored.
type Document struct {
	// ID is the document identifier; generated when empty.
	ID string

	// Content is the embedded text.
	Content string

	// Metadata is stored alongside the vector. file_name is expected.
	Metadata map[string]interface{}
}

// SearchResult is one similarity search hit.
type SearchResult struct {
	ID      string
	Content string

	// Score is the similarity score (higher = more similar).
	Score float32

	Metadata map[string]interface{}
}

// FileName returns the file_name metadata value, if present.
func (r SearchResult) FileName() string {
	if v, ok := r.Metadata[PayloadFileName].(string); ok {
		return v
	}
	return ""
}

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName rejects names that are empty, too long, or contain
// anything other than lowercase letters, digits and underscores.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

func validateSearch(query string, k int) error {
	if k <= 0 {
		return fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	const maxQueryLength = 10000
	if len(query) > maxQueryLength {
		return fmt.Errorf("query exceeds maximum length of %d characters", maxQueryLength)
	}
	return nil
}
