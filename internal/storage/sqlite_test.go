//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tickjob/pkg/logx"
)

func TestSQLiteJournal(t *testing.T) {
	j, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "journal.db")}, logx.Nop())
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	at := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, j.Append(ctx, Entry{At: at, Kind: KindEvent, Name: "rotate", Detail: "started"}))
	require.NoError(t, j.Append(ctx, Entry{Kind: KindSnapshot, Frames: 42, ActiveJobs: 2, ActiveCountdowns: 1}))

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rotate", got[0].Name)
	assert.True(t, at.Equal(got[0].At))
	assert.Equal(t, uint64(42), got[1].Frames)
	assert.Empty(t, got[1].Name)
}

func TestSQLitePrune(t *testing.T) {
	j, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "journal.db")}, logx.Nop())
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, Entry{At: time.Now().Add(-time.Hour), Kind: KindEvent, Name: "old"}))
	require.NoError(t, j.Append(ctx, Entry{Kind: KindEvent, Name: "new"}))
	require.NoError(t, j.(*sqliteJournal).prune(ctx, time.Now().Add(-time.Minute)))

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Name)
}
