package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/meeting-pipeline/pkg/ffmpeg"
)

const mb = 1024 * 1024

// fakeTool writes files whose size is bytesPerSec * requested duration.
type fakeTool struct {
	duration    float64
	bytesPerSec float64
	failAt      int // fail the n-th ExtractAudio call (1-based); 0 never
	calls       int
	starts      []float64
	lengths     []float64
}

func (f *fakeTool) Duration(context.Context, string) (float64, error) { return f.duration, nil }

func (f *fakeTool) ExtractAudio(_ context.Context, _, output string, start, duration float64, _ ffmpeg.AudioOptions) error {
	f.calls++
	if f.failAt == f.calls {
		return errors.New("ffmpeg exploded")
	}
	f.starts = append(f.starts, start)
	f.lengths = append(f.lengths, duration)
	return os.WriteFile(output, make([]byte, int(f.bytesPerSec*duration)), 0o600)
}

func writeFile(t *testing.T, dir string, size int64) string {
	t.Helper()
	p := filepath.Join(dir, "meeting.mp4")
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return p
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestChunkCount(t *testing.T) {
	ceiling := int64(25 * mb)
	tests := []struct {
		total int64
		want  int
	}{
		{0, 1},
		{10 * mb, 1},
		{20 * mb, 1},
		{20*mb + 1, 2},
		{40 * mb, 2},
		{41 * mb, 3},
		{200 * mb, 10},
	}
	for _, tt := range tests {
		n := ChunkCount(tt.total, ceiling)
		assert.Equal(t, tt.want, n, "total %d", tt.total)
		// Minimal: one fewer chunk would exceed the safety limit.
		if n > 1 {
			assert.Greater(t, float64(tt.total)/float64(n-1), float64(ceiling)*SafetyFactor)
		}
		assert.LessOrEqual(t, float64(tt.total)/float64(n), float64(ceiling)*SafetyFactor)
	}
}

func TestPlanWithOverlap(t *testing.T) {
	chunks := Plan(300, 3, 5)
	require.Len(t, chunks, 3)
	assert.Equal(t, 0.0, chunks[0].Start)
	assert.Equal(t, 0.0, chunks[0].OverlapStart)
	assert.Equal(t, 100.0, chunks[1].Start)
	assert.Equal(t, 95.0, chunks[1].OverlapStart)
	assert.Equal(t, 200.0, chunks[2].Start)
	assert.Equal(t, 100.0, chunks[2].Duration)
}

func TestSplitBelowCeilingIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, 10*mb)
	tool := &fakeTool{}

	chunks, err := NewChunker(tool, 25*mb, 0, nil).Split(context.Background(), path, dir)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Whole)
	assert.Equal(t, path, chunks[0].Path)
	assert.Zero(t, tool.calls, "no transcoding for small files")
}

func TestSplit40MBAt8MBPerMinute(t *testing.T) {
	dir := t.TempDir()
	work := t.TempDir()
	path := writeFile(t, dir, 40*mb)
	tool := &fakeTool{duration: 300, bytesPerSec: 8 * mb / 60.0}

	chunks, err := NewChunker(tool, 25*mb, 0, nil).Split(context.Background(), path, work)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, ch := range chunks {
		assert.False(t, ch.Whole)
		assert.LessOrEqual(t, float64(ch.Size), 0.8*25*mb)
		assert.FileExists(t, ch.Path)
	}
	assert.Greater(t, chunks[1].Start, 0.0)

	// Sample removed; only chunk files remain.
	assert.Len(t, listDir(t, work), len(chunks))

	Remove(chunks)
	assert.Empty(t, listDir(t, work))
	assert.FileExists(t, path)
}

func TestSplitExtractsOverlap(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, 30*mb)
	tool := &fakeTool{duration: 600, bytesPerSec: 60 * 1024}

	chunks, err := NewChunker(tool, 25*mb, 4, nil).Split(context.Background(), path, t.TempDir())
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	// calls: sample, chunk 0, chunk 1
	require.Len(t, tool.starts, 3)
	assert.Equal(t, 0.0, tool.starts[1])
	assert.Equal(t, 296.0, tool.starts[2])
	assert.Equal(t, 304.0, tool.lengths[2])
	assert.Equal(t, 296.0, chunks[1].Offset())
}

func TestSplitCleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()
	work := t.TempDir()
	path := writeFile(t, dir, 60*mb)
	tool := &fakeTool{duration: 900, bytesPerSec: 64 * 1024, failAt: 3}

	_, err := NewChunker(tool, 25*mb, 0, nil).Split(context.Background(), path, work)
	require.Error(t, err)
	assert.Empty(t, listDir(t, work))
}

func TestSplitWarnsButKeepsOversizeChunk(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, 30*mb)
	// The sample under-estimates: 1 byte/s, so one chunk is planned, then the chunk comes out large.
	tool := &oversizeTool{}

	chunks, err := NewChunker(tool, 25*mb, 0, nil).Split(context.Background(), path, t.TempDir())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Greater(t, chunks[0].Size, int64(25*mb))
}

type oversizeTool struct{ calls int }

func (o *oversizeTool) Duration(context.Context, string) (float64, error) { return 60, nil }

func (o *oversizeTool) ExtractAudio(_ context.Context, _, output string, _, _ float64, _ ffmpeg.AudioOptions) error {
	o.calls++
	size := int64(60)
	if o.calls > 1 {
		size = 26 * mb
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}
