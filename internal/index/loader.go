package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lvhr/airea/internal/domain"
	"github.com/lvhr/airea/internal/snapshot"
)

// fragmentRecord is the wire form of one fragments.jsonl line.
type fragmentRecord struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	CreatedAt  string    `json:"created_at"`
	Embedding  []float32 `json:"embedding"`
}

// Loader builds a Store from an installed snapshot directory. It implements
// snapshot.IndexLoader.
type Loader struct{}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads the fragment store of an installed snapshot into memory.
func (l *Loader) Load(dir string) (snapshot.Index, error) {
	file, err := os.Open(filepath.Join(dir, snapshot.MarkerFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open fragment store: %w", err)
	}
	defer file.Close()

	store := &Store{}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec fragmentRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("invalid fragment record: %w", err)
		}
		store.fragments = append(store.fragments, &domain.Fragment{
			ID:         rec.ID,
			DocumentID: rec.DocumentID,
			Title:      rec.Title,
			Text:       rec.Text,
			CreatedAt:  rec.CreatedAt,
			Embedding:  rec.Embedding,
		})
		store.vectors = append(store.vectors, normalize(rec.Embedding))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fragment store: %w", err)
	}

	return store, nil
}
