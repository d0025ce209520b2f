package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the seen-flag journal inside the state directory.
const FileName = "seen.jsonl"

// Tracker remembers which messages have been acknowledged as seen.
type Tracker interface {
	Seen(hash string) bool
	MarkSeen(hash, messageID string) error
}

type MemoryTracker struct {
	mu   sync.RWMutex
	seen map[string]string
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{seen: make(map[string]string)}
}

func (m *MemoryTracker) Seen(hash string) bool {
	if hash == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.seen[hash]
	m.mu.RUnlock()
	return ok
}

func (m *MemoryTracker) MarkSeen(hash, messageID string) error {
	if hash == "" {
		return nil
	}

	m.mu.Lock()
	m.seen[hash] = messageID
	m.mu.Unlock()
	return nil
}

// FileTracker journals seen hashes so the next run treats them as read.
// Each MarkSeen is written and synced before it returns.
type FileTracker struct {
	*MemoryTracker
	path    string
	file    *os.File
	writeMu sync.Mutex
}

type fileRecord struct {
	Hash      string    `json:"hash"`
	MessageID string    `json:"message_id"`
	SeenAt    time.Time `json:"seen_at"`
}

func NewFileTracker(stateDir string) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, FileName),
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open state file for append: %w", err)
	}
	tracker.file = file

	return tracker, nil
}

// Path is the journal file backing the tracker.
func (f *FileTracker) Path() string {
	return f.path
}

func (f *FileTracker) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		if record.Hash == "" {
			continue
		}

		f.mu.Lock()
		f.seen[record.Hash] = record.MessageID
		f.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	return nil
}

func (f *FileTracker) MarkSeen(hash, messageID string) error {
	if hash == "" {
		return nil
	}

	f.mu.Lock()
	if _, exists := f.seen[hash]; exists {
		f.mu.Unlock()
		return nil
	}
	f.seen[hash] = messageID
	f.mu.Unlock()

	record := fileRecord{Hash: hash, MessageID: messageID, SeenAt: time.Now().UTC()}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}
	data = append(data, '\n')

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.file.Write(data); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}

	return nil
}

// Close closes the journal.
func (f *FileTracker) Close() error {
	if f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.file.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	f.file = nil
	return nil
}
