package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

const (
	searchResultsFile = "search_results.json"
	pendingFile       = "ready_to_send.json"
	sentLogFile       = "sent_tweets.json"
	keywordStateFile  = "keyword_state.json"
)

// JSONStore keeps the queue in indented JSON files under a data directory.
// Every write goes through a temp file and rename so a crash never leaves a
// half-written file behind.
type JSONStore struct {
	dir string
	mu  sync.Mutex
}

func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &JSONStore{dir: dir}, nil
}

func (s *JSONStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *JSONStore) LoadSearchResults(_ context.Context) ([]models.CandidatePost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var posts []models.CandidatePost
	if _, err := readJSON(s.path(searchResultsFile), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *JSONStore) AppendSearchResults(_ context.Context, posts []models.CandidatePost) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing []models.CandidatePost
	if _, err := readJSON(s.path(searchResultsFile), &existing); err != nil {
		return 0, err
	}
	existing = append(existing, posts...)
	if err := writeJSON(s.path(searchResultsFile), existing); err != nil {
		return 0, err
	}
	return len(existing), nil
}

// TrimSearchResults keeps only the newest maxResults entries.
func (s *JSONStore) TrimSearchResults(_ context.Context, maxResults int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var posts []models.CandidatePost
	if _, err := readJSON(s.path(searchResultsFile), &posts); err != nil {
		return err
	}
	if maxResults < 0 || len(posts) <= maxResults {
		return nil
	}
	return writeJSON(s.path(searchResultsFile), posts[len(posts)-maxResults:])
}

func (s *JSONStore) LoadPending(_ context.Context) ([]models.PreparedReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var replies []models.PreparedReply
	if _, err := readJSON(s.path(pendingFile), &replies); err != nil {
		return nil, err
	}
	return replies, nil
}

// ReplacePending overwrites the pending batch. An empty batch is written as [].
func (s *JSONStore) ReplacePending(_ context.Context, replies []models.PreparedReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if replies == nil {
		replies = []models.PreparedReply{}
	}
	return writeJSON(s.path(pendingFile), replies)
}

func (s *JSONStore) LoadSentLog(_ context.Context) ([]models.SentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []models.SentRecord
	if _, err := readJSON(s.path(sentLogFile), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *JSONStore) AppendSent(_ context.Context, records []models.SentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing []models.SentRecord
	if _, err := readJSON(s.path(sentLogFile), &existing); err != nil {
		return err
	}
	return writeJSON(s.path(sentLogFile), append(existing, records...))
}

func (s *JSONStore) LoadKeywordState(_ context.Context) (*models.KeywordState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state models.KeywordState
	found, err := readJSON(s.path(keywordStateFile), &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

func (s *JSONStore) SaveKeywordState(_ context.Context, state models.KeywordState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeJSON(s.path(keywordStateFile), state)
}

// readJSON decodes path into out. A missing or empty file leaves out untouched
// and reports false.
func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
