package menu

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/menukit/menu/convdata"
)

func testCtx() *Context {
	return &Context{ChatID: 1234, Data: convdata.New(), MenuID: "main_menu", Page: 0}
}

func TestStaticValue(t *testing.T) {
	v := Static("hello")
	require.True(t, v.IsSet())
	got, err := v.Resolve(testCtx())
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestComputeValue(t *testing.T) {
	v := Compute(func(ctx *Context) (int, error) { return int(ctx.ChatID) * 2, nil })
	got, err := v.Resolve(testCtx())
	require.NoError(t, err)
	assert.Equal(t, 2468, got)
}

func TestComputeValueError(t *testing.T) {
	boom := errors.New("boom")
	v := Compute(func(*Context) (string, error) { return "", boom })
	_, err := v.Resolve(testCtx())
	assert.ErrorIs(t, err, boom)
}

func TestTemplateValue(t *testing.T) {
	ctx := testCtx()
	ctx.Page = 2
	ctx.Data.SavedData["name_input"] = json.RawMessage(`"Alice"`)
	ctx.Data.SavedData["count_input"] = json.RawMessage(`7`)

	v := Template[string]("Hi {saved.name_input}, chat {chat_id}, menu {menu}, page {page}, n={saved.count_input}")
	got, err := v.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hi Alice, chat 1234, menu main_menu, page 3, n=7", got)
}

func TestTemplateUnknownSavedStaysVisible(t *testing.T) {
	v := Template[string]("value: {saved.missing}")
	got, err := v.Resolve(testCtx())
	require.NoError(t, err)
	assert.Equal(t, "value: {saved.missing}", got)
}

func TestTemplateOnNonStringFails(t *testing.T) {
	v := Template[int]("{page}")
	_, err := v.Resolve(testCtx())
	assert.Error(t, err)
}

func TestUnsetValue(t *testing.T) {
	var v Value[string]
	require.False(t, v.IsSet())
	_, err := v.Resolve(testCtx())
	assert.ErrorIs(t, err, ErrUnresolvable)

	got, err := v.ResolveOr(testCtx(), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)
}
