package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
)

func TestFlatten_NestedObjectAndList(t *testing.T) {
	record := Object(
		F("trieu_chung", Scalar("vết nâu trên lá")),
		F("thuoc", List(Scalar("Tilt"), Scalar("Anvil"))),
	)

	got := Flatten(record, "Bệnh Đốm nâu", "mục")
	assert.Equal(t,
		"Bệnh Đốm nâu trieu chung: vết nâu trên lá. Bệnh Đốm nâu thuoc mục 1: Tilt. Bệnh Đốm nâu thuoc mục 2: Anvil.",
		got)
}

func TestFlatten_ItemLabel(t *testing.T) {
	got := Flatten(List(Scalar("a"), List(Scalar("b"))), "steps", "item")
	assert.Equal(t, "steps item 1: a. steps item 2 item 1: b.", got)
}

func TestFlatten_EmptyContainersContributeNothing(t *testing.T) {
	record := Object(
		F("a", Object()),
		F("b", List()),
		F("c", Scalar("x")),
		F("d", List(Object())),
	)
	assert.Equal(t, "p c: x.", Flatten(record, "p", "mục"))
	assert.Equal(t, "", Flatten(Object(), "p", "mục"))
}

func TestFlatten_Scalar(t *testing.T) {
	assert.Equal(t, "liều lượng: 1 lít/ha.", Flatten(Scalar("1 lít/ha"), "liều lượng", "mục"))
}

func TestParseStructured_PreservesKeyOrder(t *testing.T) {
	node, err := ParseStructured([]byte(`{"z": 1, "a": {"y": [true, null]}, "m": "s"}`))
	require.NoError(t, err)
	require.Equal(t, ObjectNode, node.Kind)

	keys := make([]string, 0, len(node.Fields))
	for _, f := range node.Fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)
	assert.Equal(t, "z: 1. a y mục 1: true. a y mục 2: null. m: s.", Flatten(node, "", "mục"))
}

func TestParseStructured_YAML(t *testing.T) {
	node, err := ParseStructured([]byte("lieu_luong: 1 lít/ha\nghi_chu:\n  - phun sáng\n"))
	require.NoError(t, err)
	assert.Equal(t, "Anvil lieu luong: 1 lít/ha. Anvil ghi chu mục 1: phun sáng.", Flatten(node, "Anvil", "mục"))
}

func TestParseStructured_Empty(t *testing.T) {
	node, err := ParseStructured(nil)
	require.NoError(t, err)
	assert.Equal(t, ObjectNode, node.Kind)
	assert.Empty(t, node.Fields)
}

func TestParseStructured_Invalid(t *testing.T) {
	_, err := ParseStructured([]byte(`{"a": [1, 2`))
	require.Error(t, err)
	assert.True(t, ragerr.IsInvalidInput(err))
}

func TestParseStructured_JSONEscapes(t *testing.T) {
	node, err := ParseStructured([]byte(`{"url": "http:\/\/x.vn\/a", "e": "\ud83c\udf3e \u0110\u1ed3ng"}`))
	require.NoError(t, err)
	assert.Equal(t, "url: http://x.vn/a. e: 🌾 Đồng.", Flatten(node, "", "mục"))
}

func TestParseStructured_DuplicateKeysKeepLastValue(t *testing.T) {
	node, err := ParseStructured([]byte(`{"a": "1", "b": "x", "a": "2"}`))
	require.NoError(t, err)
	assert.Equal(t, "p a: 2. p b: x.", Flatten(node, "p", "mục"))

	node, err = ParseYAML([]byte("a: 1\nb: x\na: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "p a: 2. p b: x.", Flatten(node, "p", "mục"))
}

func TestParseJSON_NumbersKeepTheirText(t *testing.T) {
	node, err := ParseJSON([]byte(`{"ngay": 105, "nang_suat": 7.50, "ton": 1e3}`))
	require.NoError(t, err)
	assert.Equal(t, "ngay: 105. nang suat: 7.50. ton: 1e3.", Flatten(node, "", "mục"))
}

func TestParseJSON_Invalid(t *testing.T) {
	for _, input := range []string{`{"a": [1, 2`, `{"a": 1} {"b": 2}`, `{1: 2}`} {
		_, err := ParseJSON([]byte(input))
		require.Error(t, err, input)
		assert.True(t, ragerr.IsInvalidInput(err), input)
	}
}
