package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
	"github.com/danh12004/KLTN/pkg/index"
	"github.com/danh12004/KLTN/pkg/rag"
)

func sampleStore(t *testing.T) (*index.Flat, []rag.Document) {
	t.Helper()
	idx, err := index.Build([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	docs := []rag.Document{
		{Content: "Bón lót phân lân trước khi sạ.", Source: "fertilizer.txt", Topic: "Phân bón"},
		{Content: "ST25 thơm nhẹ.", Source: "rice_varieties.json", SubTopicKey: "rice_variety", SubTopicValue: "ST25"},
	}
	return idx, docs
}

func TestFilePersister_RoundTrip(t *testing.T) {
	p := NewFilePersister(filepath.Join(t.TempDir(), "nested", "dir"))
	idx, docs := sampleStore(t)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, "general_qa", idx, docs))

	gotIdx, gotDocs, err := p.Load(ctx, "general_qa")
	require.NoError(t, err)
	assert.Equal(t, docs, gotDocs)
	assert.Equal(t, 2, gotIdx.Count())
	assert.Equal(t, []float32{0, 1}, gotIdx.Vector(1))

	raw, err := os.ReadFile(filepath.Join(p.Dir, "documents_general_qa.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sub_topic_value": "ST25"`)
	assert.NoFileExists(t, filepath.Join(p.Dir, "index_general_qa.bin.tmp"))
}

func TestFilePersister_Missing(t *testing.T) {
	p := NewFilePersister(t.TempDir())
	_, _, err := p.Load(context.Background(), "diseases")
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeStoreCacheNotFound))

	// only one of the two files present is still a miss
	idx, docs := sampleStore(t)
	require.NoError(t, p.Save(context.Background(), "diseases", idx, docs))
	require.NoError(t, os.Remove(filepath.Join(p.Dir, "documents_diseases.json")))
	_, _, err = p.Load(context.Background(), "diseases")
	assert.True(t, ragerr.IsNotFound(err))
}

func TestFilePersister_Invalid(t *testing.T) {
	ctx := context.Background()
	idx, docs := sampleStore(t)

	tests := []struct {
		name string
		file string
		data string
	}{
		{"malformed documents", "documents_s.json", `[{"content":`},
		{"count mismatch", "documents_s.json", `[]`},
		{"corrupt index", "index_s.bin", "AGFL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewFilePersister(t.TempDir())
			require.NoError(t, p.Save(ctx, "s", idx, docs))
			require.NoError(t, os.WriteFile(filepath.Join(p.Dir, tt.file), []byte(tt.data), 0o644))

			_, _, err := p.Load(ctx, "s")
			require.Error(t, err)
			assert.True(t, ragerr.IsInvalidInput(err))
		})
	}
}

func TestFilePersister_SaveRejectsMisaligned(t *testing.T) {
	p := NewFilePersister(t.TempDir())
	idx, docs := sampleStore(t)

	err := p.Save(context.Background(), "s", idx, docs[:1])
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeStoreCacheWriteFailure))
}

func TestFilePersister_TornRewriteIsRejected(t *testing.T) {
	ctx := context.Background()
	idx, docs := sampleStore(t)
	p := NewFilePersister(t.TempDir())
	require.NoError(t, p.Save(ctx, "s", idx, docs))

	// a rebuild with the same row count that stopped after the documents rename
	next := NewFilePersister(t.TempDir())
	rebuilt := []rag.Document{{Content: "Phun Beam 75WP khi chớm bệnh."}, {Content: "Bón đủ kali."}}
	require.NoError(t, next.Save(ctx, "s", idx, rebuilt))
	raw, err := os.ReadFile(filepath.Join(next.Dir, "documents_s.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir, "documents_s.json"), raw, 0o644))

	_, _, err = p.Load(ctx, "s")
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeStoreCacheInvalid))
}

func TestFilePersister_MissingManifestIsInvalid(t *testing.T) {
	ctx := context.Background()
	idx, docs := sampleStore(t)
	p := NewFilePersister(t.TempDir())
	require.NoError(t, p.Save(ctx, "s", idx, docs))
	require.NoError(t, os.Remove(filepath.Join(p.Dir, "manifest_s.json")))

	_, _, err := p.Load(ctx, "s")
	require.Error(t, err)
	assert.True(t, ragerr.IsInvalidInput(err))
}

func TestFilePersister_RejectsNamesOutsideDir(t *testing.T) {
	ctx := context.Background()
	idx, docs := sampleStore(t)
	root := t.TempDir()
	p := NewFilePersister(filepath.Join(root, "cache"))

	for _, name := range []string{"../escape", "a/b", `a\b`, "..", "."} {
		err := p.Save(ctx, name, idx, docs)
		require.Error(t, err, name)
		assert.True(t, ragerr.HasCode(err, ragerr.CodeStoreNameInvalid), name)

		_, _, err = p.Load(ctx, name)
		assert.True(t, ragerr.HasCode(err, ragerr.CodeStoreNameInvalid), name)
	}
	assert.NoFileExists(t, filepath.Join(root, "index_escape.bin"))
}
