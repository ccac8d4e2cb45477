// Package chapters provides ChapterRepository adapters: an in-memory map for
// tests and development, and a SQLite table for a single-node deployment.
package chapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/chapter-audio-service/internal/core"
)

// MemoryRepository keeps chapters in a map. Chapters are stored as JSON so
// callers never share state with the repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	chapters map[string][]byte
	now      func() time.Time
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		chapters: make(map[string][]byte),
		now:      time.Now,
	}
}

// Create stores a new chapter at revision 1.
func (r *MemoryRepository) Create(_ context.Context, chapter *core.Chapter) error {
	err := validateNew(chapter)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.chapters[chapter.ID]; exists {
		return fmt.Errorf("%w: chapter %s already exists", core.ErrConflict, chapter.ID)
	}

	chapter.Revision = 1
	chapter.UpdatedAt = r.now().UTC()

	data, err := json.Marshal(chapter)
	if err != nil {
		return fmt.Errorf("encode chapter %s: %w", chapter.ID, err)
	}

	r.chapters[chapter.ID] = data

	return nil
}

// Get returns a copy of the chapter.
func (r *MemoryRepository) Get(_ context.Context, chapterID string) (*core.Chapter, error) {
	r.mu.RLock()
	data, ok := r.chapters[chapterID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("chapter %s: %w", chapterID, core.ErrNotFound)
	}

	var chapter core.Chapter

	err := json.Unmarshal(data, &chapter)
	if err != nil {
		return nil, fmt.Errorf("decode chapter %s: %w", chapterID, err)
	}

	return &chapter, nil
}

// Save replaces the chapter if its revision is still the stored one.
func (r *MemoryRepository) Save(_ context.Context, chapter *core.Chapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, ok := r.chapters[chapter.ID]
	if !ok {
		return fmt.Errorf("chapter %s: %w", chapter.ID, core.ErrNotFound)
	}

	var stored struct {
		Revision int64 `json:"revision"`
	}

	err := json.Unmarshal(data, &stored)
	if err != nil {
		return fmt.Errorf("decode chapter %s: %w", chapter.ID, err)
	}

	if stored.Revision != chapter.Revision {
		return fmt.Errorf("%w: chapter %s is at revision %d, not %d",
			core.ErrConflict, chapter.ID, stored.Revision, chapter.Revision)
	}

	chapter.Revision++

	data, err = json.Marshal(chapter)
	if err != nil {
		chapter.Revision--

		return fmt.Errorf("encode chapter %s: %w", chapter.ID, err)
	}

	r.chapters[chapter.ID] = data

	return nil
}

func validateNew(chapter *core.Chapter) error {
	if chapter == nil || chapter.ID == "" {
		return core.Validationf("chapter id is required")
	}

	if chapter.AuthorID == "" {
		return core.Validationf("chapter %s has no author", chapter.ID)
	}

	return nil
}
