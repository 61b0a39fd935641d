package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptLogAppendLoad(t *testing.T) {
	l, err := NewTranscriptLog(filepath.Join(t.TempDir(), "transcripts"))
	require.NoError(t, err)

	require.NoError(t, l.Append(TranscriptEntry{JobID: "job-1", Role: "user", Text: "hello"}))
	require.NoError(t, l.Append(TranscriptEntry{JobID: "job-1", Role: "assistant", Text: "hi"}))

	entries, err := l.Load("job-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Text)
	assert.False(t, entries[0].Timestamp.IsZero())

	missing, err := l.Load("job-2")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestTranscriptLogRejectsBadInput(t *testing.T) {
	l, err := NewTranscriptLog(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, l.Append(TranscriptEntry{JobID: "", Role: "user"}))
	assert.Error(t, l.Append(TranscriptEntry{JobID: "../escape", Role: "user"}))
	assert.Error(t, l.Append(TranscriptEntry{JobID: "a/b", Role: "user"}))
	assert.Error(t, l.Append(TranscriptEntry{JobID: "ok"}))

	_, err = l.Load("..")
	assert.Error(t, err)

	_, err = NewTranscriptLog("")
	assert.Error(t, err)
}

func TestTranscriptLogSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	l, err := NewTranscriptLog(dir)
	require.NoError(t, err)

	content := "{\"jobId\":\"j\",\"role\":\"user\",\"text\":\"a\"}\nnot json\n\n{\"jobId\":\"j\",\"role\":\"assistant\",\"text\":\"b\"}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "j.jsonl"), []byte(content), 0600))

	entries, err := l.Load("j")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[1].Text)
}
