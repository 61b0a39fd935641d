package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TranscriptEntry is one persisted line of a job transcript.
type TranscriptEntry struct {
	JobID       string                 `json:"jobId"`
	Role        string                 `json:"role"`
	Text        string                 `json:"text"`
	Source      string                 `json:"source,omitempty"`
	Participant string                 `json:"participant,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// TranscriptLog persists conversation turns as one JSONL file per job.
type TranscriptLog struct {
	dir string
	mu  sync.Mutex
}

// NewTranscriptLog creates the directory if needed.
func NewTranscriptLog(dir string) (*TranscriptLog, error) {
	if dir == "" {
		return nil, fmt.Errorf("transcript directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	return &TranscriptLog{dir: dir}, nil
}

// Dir returns the transcript directory.
func (l *TranscriptLog) Dir() string {
	return l.dir
}

func validateJobID(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("job id cannot be empty")
	}
	if strings.Contains(jobID, "..") {
		return fmt.Errorf("job id cannot contain '..'")
	}
	if strings.ContainsAny(jobID, "/\\\x00") {
		return fmt.Errorf("job id cannot contain path separators or null bytes")
	}
	return nil
}

func (l *TranscriptLog) path(jobID string) string {
	return filepath.Join(l.dir, jobID+".jsonl")
}

// Append writes entry to its job's file.
func (l *TranscriptLog) Append(entry TranscriptEntry) error {
	if err := validateJobID(entry.JobID); err != nil {
		return err
	}
	if entry.Role == "" {
		return fmt.Errorf("transcript role cannot be empty")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path(entry.JobID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transcript entry: %w", err)
	}
	return nil
}

// Load reads every entry of a job. A missing file yields no entries;
// malformed lines are skipped.
func (l *TranscriptLog) Load(jobID string) ([]TranscriptEntry, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}

	file, err := os.Open(l.path(jobID))
	if os.IsNotExist(err) {
		return []TranscriptEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	entries := []TranscriptEntry{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry TranscriptEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Warn().
				Str("jobId", jobID).
				Int("line", lineNum).
				Err(err).
				Msg("Failed to parse transcript line, skipping")
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}
	return entries, nil
}
