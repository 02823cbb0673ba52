package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeID(t *testing.T) {
	cases := map[string]string{
		"MainMenu":       "main_menu",
		"main menu":      "main_menu",
		"Test Checkbox!": "test_checkbox",
		" HTTPInput ":    "http_input",
		"already_snake":  "already_snake",
		"a--b__c":        "a_b_c",
		"":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeID(in), "input %q", in)
	}
}

func TestNavigationValidate(t *testing.T) {
	nav := &Navigation{
		Base:         Base{Name: "MainMenu", Title: Static("Main")},
		Destinations: []Destination{{MenuID: "TestMenu"}},
	}
	require.NoError(t, nav.Validate())
	assert.Equal(t, "main_menu", nav.ID())
	assert.Equal(t, KindNavigation, nav.Kind())

	empty := &Navigation{Base: Base{Name: "x", Title: Static("X")}}
	assert.ErrorIs(t, empty.Validate(), ErrInvalidDefinition)

	noTitle := &Navigation{Base: Base{Name: "x"}, Destinations: []Destination{{MenuID: "y"}}}
	assert.ErrorIs(t, noTitle.Validate(), ErrInvalidDefinition)
}

func TestCheckboxValidate(t *testing.T) {
	box := &Checkbox{
		Base: Base{Name: "test_checkbox", Title: Static("Shopping")},
		Options: []CheckboxOption{
			{Key: "eggs", Label: "Eggs", Default: true},
			{Key: "milk", Label: "Milk"},
		},
	}
	require.NoError(t, box.Validate())
	assert.Equal(t, map[string]bool{"eggs": true, "milk": false}, box.Defaults())

	dup := &Checkbox{
		Base:    Base{Name: "x", Title: Static("X")},
		Options: []CheckboxOption{{Key: "a"}, {Key: "a"}},
	}
	assert.ErrorIs(t, dup.Validate(), ErrInvalidDefinition)
}

func TestRadioValidate(t *testing.T) {
	radio := &Radio{
		Base: Base{Name: "test_radio", Title: Static("Pick one")},
		Options: []RadioOption{
			{Key: "mom", Label: "Mom"},
			{Key: "waifu", Label: "Waifu", Default: true},
		},
	}
	require.NoError(t, radio.Validate())
	assert.Equal(t, "waifu", radio.Default())

	twoDefaults := &Radio{
		Base: Base{Name: "x", Title: Static("X")},
		Options: []RadioOption{
			{Key: "a", Default: true},
			{Key: "b", Default: true},
		},
	}
	assert.ErrorIs(t, twoDefaults.Validate(), ErrInvalidDefinition)
}

func TestTextInputValidate(t *testing.T) {
	text := &TextInput{
		Base:   Base{Name: "email_input", Title: Static("Your email?")},
		Parser: ParseEmail,
	}
	require.NoError(t, text.Validate())

	noParser := &TextInput{Base: Base{Name: "x", Title: Static("X")}}
	assert.ErrorIs(t, noParser.Validate(), ErrInvalidDefinition)
}

func TestUploadAccepts(t *testing.T) {
	up := &Upload{
		Base:        Base{Name: "avatar_upload", Title: Static("Send a picture")},
		AllowedMIME: []string{"image/*", "application/pdf"},
		AllowedExt:  []string{".png", ".jpg", ".pdf"},
	}
	require.NoError(t, up.Validate())

	assert.True(t, up.Accepts("image/png", "me.png"))
	assert.True(t, up.Accepts("application/pdf", "doc.PDF"))
	assert.False(t, up.Accepts("video/mp4", "clip.png"), "MIME outside allow list")
	assert.False(t, up.Accepts("image/png", "me.gif"), "extension outside allow list")

	open := &Upload{Base: Base{Name: "any", Title: Static("Anything")}}
	assert.True(t, open.Accepts("video/mp4", "clip.mov"))
}

func TestParsers(t *testing.T) {
	v, err := ParseString("  hi ")
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
	_, err = ParseString("   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	v, err = ParseInt("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	_, err = ParseInt("4.2")
	assert.ErrorIs(t, err, ErrInvalidInput)

	v, err = ParseFloat("4.2")
	require.NoError(t, err)
	assert.Equal(t, 4.2, v)

	v, err = ParseEmail("Alice <alice@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", v)
	_, err = ParseEmail("not-an-email")
	assert.ErrorIs(t, err, ErrInvalidInput)

	v, err = ParseURL("https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", v)
	_, err = ParseURL("ftp://example.com")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseURL("just text")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
