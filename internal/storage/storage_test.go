package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tickjob/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", "OFF", " disabled "} {
		j, err := Open(Config{Driver: driver}, logx.Nop())
		assert.NoError(t, err, driver)
		assert.Nil(t, j, driver)
	}
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}

func TestFileJournalRequiresPath(t *testing.T) {
	_, err := Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func TestFileJournalAppendAndRecent(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "sub", "tickd.db")}, logx.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(ctx, Entry{Kind: KindEvent, Name: fmt.Sprintf("cd%d", i), Detail: "completed"}))
	}
	require.NoError(t, j.Append(ctx, Entry{Kind: KindSnapshot, Frames: 600, ActiveJobs: 3}))

	got, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "cd3", got[0].Name)
	assert.Equal(t, "cd4", got[1].Name)
	assert.Equal(t, KindSnapshot, got[2].Kind)
	assert.Equal(t, uint64(600), got[2].Frames)
	assert.False(t, got[2].At.IsZero())

	all, err := j.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	_, err = os.Stat(filepath.Join(dir, "sub", "tickd.journal.jsonl"))
	assert.NoError(t, err)

	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Append(ctx, Entry{Kind: KindEvent}), ErrClosed)
}

func TestFileJournalSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "j.jsonl")
	j, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.Append(ctx, Entry{Kind: KindEvent, Name: "a", At: time.Unix(1, 0)}))

	f, err := os.OpenFile(filepath.Join(dir, "j.journal.jsonl"), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, j.Append(ctx, Entry{Kind: KindEvent, Name: "b"}))
	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "b", got[1].Name)
}
