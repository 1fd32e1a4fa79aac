package loader

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danh12004/KLTN/pkg/rag"
)

func testdataPath(name string) string {
	return filepath.Join("testdata", name)
}

func newTestLoader(buf *bytes.Buffer) *Loader {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(NewChunker(), logger)
}

func brownSpotDefinition() rag.StoreDefinition {
	return rag.StoreDefinition{
		Name: "brown_spot",
		Sources: []rag.SourceDescriptor{
			{
				ID:       "brown_spot_control",
				Type:     rag.SourceText,
				Path:     testdataPath("brown_spot.txt"),
				Metadata: map[string]string{"topic": "Bệnh hại lúa", "sub_topic": "Phòng trừ Đốm nâu"},
			},
			{
				ID:       "brown_spot_drug",
				Type:     rag.SourceStructured,
				Path:     testdataPath("brown_spot.json"),
				Metadata: map[string]string{"topic": "Bệnh hại lúa", "sub_topic": "Thông tin thuốc"},
			},
		},
	}
}

func TestLoad_TextAndStructured(t *testing.T) {
	var logs bytes.Buffer
	docs, report := newTestLoader(&logs).Load(brownSpotDefinition())

	require.Len(t, docs, 3)
	assert.Equal(t, 3, report.Chunks())
	assert.Equal(t, 2, report.Count(StatusLoaded))

	text := docs[0]
	assert.Equal(t, "brown_spot.txt", text.Source)
	assert.Equal(t, "Bệnh hại lúa", text.Topic)
	assert.Equal(t, "Phòng trừ Đốm nâu", text.SubTopic)
	assert.True(t, strings.HasPrefix(text.Content, "Bệnh đốm nâu do nấm Bipolaris oryzae gây ra. Vết bệnh"))
	assert.NotContains(t, text.Content, "\n")

	tilt := docs[1]
	assert.Equal(t, "brown_spot.json", tilt.Source)
	assert.Equal(t, "Thông tin thuốc", tilt.SubTopic)
	assert.Equal(t,
		"Bệnh hại lúa Tilt Super 300EC hoat chat: Difenoconazole + Propiconazole. "+
			"Bệnh hại lúa Tilt Super 300EC lieu luong: 0.3 lít/ha. "+
			"Bệnh hại lúa Tilt Super 300EC luu y mục 1: Phun khi bệnh chớm xuất hiện. "+
			"Bệnh hại lúa Tilt Super 300EC luu y mục 2: Không phun khi trời mưa.",
		tilt.Content)

	assert.True(t, strings.HasPrefix(docs[2].Content, "Bệnh hại lúa Anvil 5SC hoat chat: Hexaconazole."))
	assert.Empty(t, tilt.SubTopicValue)
}

func TestLoad_SubTopicKey(t *testing.T) {
	var logs bytes.Buffer
	def := rag.StoreDefinition{
		Name: "general_qa",
		Sources: []rag.SourceDescriptor{{
			ID:       "rice_varieties_qa",
			Type:     rag.SourceStructured,
			Path:     testdataPath("rice_varieties.json"),
			Metadata: map[string]string{"topic": "Giống lúa", "sub_topic_key": "rice_variety"},
		}},
	}

	docs, _ := newTestLoader(&logs).Load(def)
	require.Len(t, docs, 2)

	assert.Equal(t, "rice_variety", docs[0].SubTopicKey)
	assert.Equal(t, "OM5451", docs[0].SubTopicValue)
	assert.Equal(t, "ST25", docs[1].SubTopicValue)

	v, ok := docs[1].Tag("rice_variety")
	assert.True(t, ok)
	assert.Equal(t, "ST25", v)
	assert.Contains(t, docs[1].Content, "Giống lúa ST25 dac diem mui thom: thơm nhẹ.")
}

func TestLoad_MissingSourceIsSkipped(t *testing.T) {
	var logs bytes.Buffer
	def := brownSpotDefinition()
	missing := rag.SourceDescriptor{
		ID:   "does_not_exist",
		Type: rag.SourceText,
		Path: testdataPath("missing.txt"),
	}
	def.Sources = []rag.SourceDescriptor{def.Sources[0], missing, def.Sources[1]}

	docs, report := newTestLoader(&logs).Load(def)

	assert.Len(t, docs, 3)
	assert.Equal(t, 1, report.Count(StatusSkipped))
	assert.Equal(t, 2, report.Count(StatusLoaded))
	assert.Equal(t, StatusSkipped, report.Sources[1].Status)
	assert.Contains(t, logs.String(), "knowledge source not found")
	assert.Contains(t, logs.String(), "does_not_exist")
}

func TestLoad_MalformedSourceFails(t *testing.T) {
	var logs bytes.Buffer
	def := brownSpotDefinition()
	def.Sources = append(def.Sources, rag.SourceDescriptor{
		ID:   "broken",
		Type: rag.SourceStructured,
		Path: testdataPath("broken.json"),
	})

	docs, report := newTestLoader(&logs).Load(def)

	assert.Len(t, docs, 3)
	assert.Equal(t, 1, report.Count(StatusFailed))
	assert.Error(t, report.Sources[2].Err)
	assert.Contains(t, logs.String(), "failed to load knowledge source")
}

func TestLoad_UnknownTypeFails(t *testing.T) {
	var logs bytes.Buffer
	def := rag.StoreDefinition{Name: "x", Sources: []rag.SourceDescriptor{{
		ID: "weird", Type: "csv", Path: testdataPath("brown_spot.txt"),
	}}}

	docs, report := newTestLoader(&logs).Load(def)
	assert.Empty(t, docs)
	assert.Equal(t, 1, report.Count(StatusFailed))
}

func TestLoad_NothingAvailable(t *testing.T) {
	var logs bytes.Buffer
	def := rag.StoreDefinition{Name: "empty", Sources: []rag.SourceDescriptor{
		{ID: "a", Type: rag.SourceText, Path: testdataPath("nope.txt")},
		{ID: "b", Type: rag.SourceStructured, Path: testdataPath("nope.json")},
	}}

	docs, report := newTestLoader(&logs).Load(def)
	assert.Empty(t, docs)
	assert.Equal(t, 2, report.Count(StatusSkipped))
}

func TestLoad_NonObjectRootIsOneRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tips.json")
	require.NoError(t, os.WriteFile(path, []byte(`["Giữ nước 3-5 cm", "Rút nước trước khi bón"]`), 0o644))

	var logs bytes.Buffer
	docs, _ := newTestLoader(&logs).Load(rag.StoreDefinition{Name: "water", Sources: []rag.SourceDescriptor{{
		ID: "tips", Type: rag.SourceStructured, Path: path,
		Metadata: map[string]string{"topic": "Quản lý nước", "region": "mekong"},
	}}})

	require.Len(t, docs, 1)
	assert.Equal(t, "Quản lý nước tips mục 1: Giữ nước 3-5 cm. Quản lý nước tips mục 2: Rút nước trước khi bón.", docs[0].Content)
	assert.Equal(t, "mekong", docs[0].Metadata["region"])
}

func TestLoad_Deterministic(t *testing.T) {
	var logs bytes.Buffer
	l := newTestLoader(&logs)

	first, _ := l.Load(brownSpotDefinition())
	second, _ := l.Load(brownSpotDefinition())
	assert.Equal(t, first, second)
}

func TestLoad_SmallChunksKeepOrder(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	l := New(NewChunker(WithChunkSize(80), WithOverlap(3)), logger)

	docs, _ := l.Load(brownSpotDefinition())
	require.Greater(t, len(docs), 3)

	// text chunks first, then Tilt, then Anvil
	assert.Equal(t, "brown_spot.txt", docs[0].Source)
	last := docs[len(docs)-1]
	assert.Equal(t, "brown_spot.json", last.Source)
	assert.Contains(t, last.Content, "Anvil 5SC")
}

func TestLoad_JSONEscapesAreLoaded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "links.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"nguon": {"url": "https:\/\/khuyennong.vn\/lua", "bieu_tuong": "\ud83c\udf3e"}}`), 0o644))

	var logs bytes.Buffer
	docs, report := newTestLoader(&logs).Load(rag.StoreDefinition{Name: "general_qa", Sources: []rag.SourceDescriptor{{
		ID: "links", Type: rag.SourceStructured, Path: path,
	}}})

	assert.Equal(t, 1, report.Count(StatusLoaded))
	require.Len(t, docs, 1)
	assert.Equal(t, "nguon url: https://khuyennong.vn/lua. nguon bieu tuong: 🌾.", docs[0].Content)
}
