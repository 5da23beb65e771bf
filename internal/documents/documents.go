// Package documents holds the resume and job description text of each interview session.
package documents

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrNotFound          = errors.New("documents not found")
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Documents is the extracted text of one session's uploads.
type Documents struct {
	Resume         string
	JobDescription string
}

// Missing returns the names of documents that are empty or whitespace-only.
func (d Documents) Missing() []string {
	var missing []string
	if strings.TrimSpace(d.Resume) == "" {
		missing = append(missing, "resume")
	}
	if strings.TrimSpace(d.JobDescription) == "" {
		missing = append(missing, "job description")
	}
	return missing
}

// Store keeps documents per session id.
type Store struct {
	mu   sync.RWMutex
	docs map[string]Documents
}

// NewStore returns an empty document store.
func NewStore() *Store {
	return &Store{docs: make(map[string]Documents)}
}

// Put stores the documents of a session, replacing earlier ones.
func (s *Store) Put(sessionID string, docs Documents) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[sessionID] = docs
}

// Get returns the documents stored for a session.
func (s *Store) Get(sessionID string) (Documents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs, ok := s.docs[sessionID]
	if !ok {
		return Documents{}, ErrNotFound
	}
	return docs, nil
}

// Delete forgets a session's documents.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, sessionID)
}

// Extractor turns an uploaded file into text.
type Extractor interface {
	Extract(path string) (string, error)
}

// PlainText reads text and markdown files as-is. PDF and Word documents must be
// converted by an external extractor first.
type PlainText struct{}

var textExtensions = map[string]bool{
	".txt":  true,
	".text": true,
	".md":   true,
	"":      true,
}

// Extract implements Extractor.
func (PlainText) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !textExtensions[ext] {
		return "", fmt.Errorf("%w: %s (convert it to text first)", ErrUnsupportedFormat, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document %q: %w", path, err)
	}

	return Normalize(string(data)), nil
}

// Normalize unifies line endings, trims trailing spaces and drops runs of blank lines.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
