package artifact

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "checkpoint.json", []byte(`{"day":"2024-01-01"}`)))

	data, err := s.Load(ctx, "checkpoint.json")
	require.NoError(t, err)
	require.Equal(t, `{"day":"2024-01-01"}`, string(data))
}

func TestDiskStore_LoadMissingReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir)
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "nope.bin")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDiskStore_Exists(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "model.bin")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(ctx, "model.bin", []byte("blob")))

	ok, err = s.Exists(ctx, "model.bin")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDiskStore_SaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "state.json", []byte("v1")))
	require.NoError(t, s.Save(ctx, "state.json", []byte("v2")))

	data, err := s.Load(ctx, "state.json")
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))

	entries, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	require.NoError(t, err)
	require.Empty(t, entries, "temp files must not be left behind after a successful save")
}

func TestDiskStore_SaveCreatesNestedParentDirs(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "topics/2024-01-01/slice.json", []byte("{}")))

	data, err := s.Load(ctx, "topics/2024-01-01/slice.json")
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))
}

func TestDiskStore_AppendLine(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.AppendLine(ctx, "produced.txt", "topics/2024-01-01/slice.json"))
	require.NoError(t, s.AppendLine(ctx, "produced.txt", "topics/2024-01-02/slice.json"))

	data, err := s.Load(ctx, "produced.txt")
	require.NoError(t, err)
	require.Equal(t, "topics/2024-01-01/slice.json\ntopics/2024-01-02/slice.json\n", string(data))
}

func TestDiskStore_AppendLineCreatesFileWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "fresh.txt")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.AppendLine(ctx, "fresh.txt", "first"))

	data, err := s.Load(ctx, "fresh.txt")
	require.NoError(t, err)
	require.Equal(t, "first\n", string(data))
}
