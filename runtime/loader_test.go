package runtime

import (
	"testing"
	"testing/fstest"

	"panel-lab/errors"

	"github.com/stretchr/testify/require"
)

func TestCensoredLoader_LoadAll(t *testing.T) {
	req := require.New(t)
	folder := fstest.MapFS{
		"words/en.txt":       {Data: []byte("# english\nShit\r\nbastard\n\nshit\n")},
		"words/fr.txt":       {Data: []byte("merde\nbastard\n")},
		"words/README.md":    {Data: []byte("not a dictionary")},
		"words/nested/x.txt": {Data: []byte("ignored")},
	}

	data, err := NewCensoredLoader(folder).LoadAll("words")

	req.NoError(err)
	req.Equal([]string{"bastard", "merde", "shit"}, data.Words)
	req.Equal([]string{"en", "fr"}, data.Languages)
	req.Equal(map[string]int{"en": 3, "fr": 2}, data.PerLang)
}

func TestCensoredLoader_Empty(t *testing.T) {
	req := require.New(t)
	folder := fstest.MapFS{"words/en.txt": {Data: []byte("# nothing yet\n\n")}}

	_, err := NewCensoredLoader(folder).LoadAll("words")

	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestCensoredLoader_Embedded(t *testing.T) {
	req := require.New(t)

	data, err := NewCensoredLoader(CensoredFolder()).LoadAll("censored")

	req.NoError(err)
	req.Contains(data.Languages, "en")
	req.Contains(data.Words, "merde")
}
