package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/degflow/internal/domain"
)

func TestMemoryLogStore_AppendListByTask_PreservesOrder(t *testing.T) {
	store := NewMemoryLogStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, domain.LogEntry{TaskID: "t1", Message: "first", Severity: domain.LogSeverityInfo}))
	require.NoError(t, store.Append(ctx, domain.LogEntry{TaskID: "t1", Message: "second", Severity: domain.LogSeverityError}))
	require.NoError(t, store.Append(ctx, domain.LogEntry{TaskID: "t2", Message: "other task", Severity: domain.LogSeverityInfo}))

	entries, err := store.ListByTask(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
}

func TestMemoryLogStore_ListByTask_UnknownTaskReturnsEmpty(t *testing.T) {
	store := NewMemoryLogStore()
	entries, err := store.ListByTask(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoggingSink_Log_AppendsToStore(t *testing.T) {
	store := NewMemoryLogStore()
	sink := NewLoggingSink(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sink.Log(domain.LogEntry{TaskID: "t1", Message: "node dispatched", Severity: domain.LogSeverityInfo})
	sink.NodeUpdate("t1", domain.ExecutionNode{ID: "n1"})
	sink.TaskUpdate("t1", domain.TaskStatusRunning)

	entries, err := store.ListByTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "node dispatched", entries[0].Message)
}
