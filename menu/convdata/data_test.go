package convdata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeserializeEmptyBlob(t *testing.T) {
	for _, blob := range [][]byte{nil, {}} {
		d, err := Deserialize(blob)
		require.NoError(t, err)
		assert.NotNil(t, d.Menus)
		assert.NotNil(t, d.SavedData)
		assert.Empty(t, d.History)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	d := New()
	m := d.EnsureMenu("main_menu")
	m.MessageID = 42
	m.Page = 2
	require.NoError(t, m.EncodeData(map[string]bool{"eggs": true}))
	d.Push("main_menu")
	d.SavedData["test_chooser"] = json.RawMessage(`"waifu"`)

	blob, err := d.Serialize()
	require.NoError(t, err)

	got, err := Deserialize(blob)
	require.NoError(t, err)
	require.NotNil(t, got.Menu("main_menu"))
	assert.Equal(t, 42, got.Menu("main_menu").MessageID)
	assert.Equal(t, 2, got.Menu("main_menu").Page)
	assert.Equal(t, []string{"main_menu"}, got.History)
	assert.JSONEq(t, `"waifu"`, string(got.SavedData["test_chooser"]))

	var checks map[string]bool
	require.NoError(t, got.Menu("main_menu").DecodeData(&checks))
	assert.True(t, checks["eggs"])
}

func TestWireFieldNames(t *testing.T) {
	d := New()
	d.EnsureMenu("a").MessageID = 7
	d.Push("a")
	blob, err := d.Serialize()
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(blob, &raw))
	assert.Contains(t, raw, "menus")
	assert.Contains(t, raw, "history")
	assert.Contains(t, raw, "saved_data")

	var menus map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["menus"], &menus))
	assert.Contains(t, menus["a"], "message_id")
	assert.Contains(t, menus["a"], "page")
}

func TestHistoryStack(t *testing.T) {
	d := New()
	assert.Equal(t, "", d.Top())
	assert.Equal(t, "", d.Pop())

	d.Push("main_menu")
	d.PushUnlessTop("main_menu")
	assert.Equal(t, []string{"main_menu"}, d.History, "re-activating the top menu must not duplicate it")

	d.PushUnlessTop("test_menu")
	assert.Equal(t, []string{"main_menu", "test_menu"}, d.History)

	assert.Equal(t, "test_menu", d.Pop())
	assert.Equal(t, "main_menu", d.Top())
}

func TestEnsureMenuIdempotent(t *testing.T) {
	d := New()
	a := d.EnsureMenu("x")
	a.Page = 3
	b := d.EnsureMenu("x")
	assert.Same(t, a, b)
	assert.Equal(t, 3, b.Page)
}

func TestDecodeDataMissing(t *testing.T) {
	var m MenuData
	var v map[string]bool
	assert.Error(t, m.DecodeData(&v))
	assert.False(t, m.HasData())
}
