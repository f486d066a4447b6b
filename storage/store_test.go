package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My App", "my-app"},
		{"Clock Face 2", "clock-face-2"},
		{"weird/../name", "weird-name"},
		{"ünicode näme", "nicode-nme"},
		{"___", "___"},
		{"", "app"},
		{"!!!", "app"},
		{"  spaced  out  ", "spaced-out"},
		{"UPPER_case-mix.ed", "upper_case-mix-ed"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Slug(c.in), "input %q", c.in)
	}
}

func TestSlugBoundedLength(t *testing.T) {
	long := Slug("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.LessOrEqual(t, len(long), 32)
}

func TestSaveAppFileLayout(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())

	require.NoError(t, s.SaveAppFile("My App", "index.html", []byte("<html></html>")))
	data, err := os.ReadFile(filepath.Join(s.Base(), "my-app", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestSaveAppFileResources(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())

	require.NoError(t, s.SaveAppFile("My App", "resources/icon.png", []byte{1, 2}))
	data, err := os.ReadFile(filepath.Join(s.Base(), "my-app", "resources", "icon.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)
}

func TestSaveAppFileLegacyRename(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())

	require.NoError(t, s.SaveAppFile("Weather", "app.js", []byte("x")))
	_, err := os.Stat(filepath.Join(s.Base(), "weather", "weather.js"))
	assert.NoError(t, err)
}

func TestSaveAppFileRejectsEscapes(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())
	assert.Error(t, s.SaveAppFile("evil", "../outside.txt", []byte("x")))
	assert.Error(t, s.SaveAppFile("evil", "", []byte("x")))
}

func TestReadAppFile(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, s.SaveAppFile("Notes", "notes.txt", []byte("hi")))
	data, err := s.ReadAppFile("Notes", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestListApps(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())
	apps, err := s.ListApps()
	require.NoError(t, err)
	assert.Empty(t, apps)

	require.NoError(t, s.SaveAppFile("Alpha", "a.txt", []byte("a")))
	require.NoError(t, s.SaveAppFile("Beta", "b.txt", []byte("b")))
	apps, err = s.ListApps()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, apps)
}

func TestRemoveApp(t *testing.T) {
	s := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, s.SaveAppFile("Gone", "g.txt", []byte("g")))
	require.NoError(t, s.RemoveApp("Gone"))
	apps, err := s.ListApps()
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestValidateMarkup(t *testing.T) {
	cases := []struct {
		name string
		data string
		ok   bool
	}{
		{"a.html", "<html><body/></html>", true},
		{"a.html", "<!DOCTYPE html><html></html>", true},
		{"a.xml", "<?xml version=\"1.0\"?><root><x/></root>", true},
		{"a.svg", "<svg></svg>", true},
		{"a.html", "<html><body>", false},           // missing close
		{"a.html", "</html><html>", false},          // close precedes open
		{"a.html", "no tags at all", false},         // no root tag
		{"a.txt", "not markup, never checked", true},
		{"noext", "<html>", true},
	}
	for _, c := range cases {
		err := ValidateMarkup(c.name, []byte(c.data))
		if c.ok {
			assert.NoError(t, err, "%s: %q", c.name, c.data)
		} else {
			assert.Error(t, err, "%s: %q", c.name, c.data)
		}
	}
}

func TestIsMarkupName(t *testing.T) {
	assert.True(t, IsMarkupName("index.HTML"))
	assert.True(t, IsMarkupName("face.svg"))
	assert.False(t, IsMarkupName("app.js"))
	assert.False(t, IsMarkupName("plain"))
}
