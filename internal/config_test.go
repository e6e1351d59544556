package internal

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Panel_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("MAX_SPEAKERS", "4")
	t.Setenv("SINK_TIMEOUT", "750ms")

	var cfg PanelConfig
	req.NoError(Load(&cfg, "does-not-exist.env"))

	req.Equal(3, cfg.MaxCohosts)
	req.Equal(4, cfg.MaxSpeakers)
	req.Equal(750*time.Millisecond, cfg.SinkTimeout)
	req.Equal("*", cfg.ModerationCharReplacement)
}

func TestLoad_Directory_Requires_Secret(t *testing.T) {
	req := require.New(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "restored after the test")
	req.NoError(os.Unsetenv("JWT_SECRET"))

	var cfg DirectoryConfig
	req.Error(Load(&cfg, "does-not-exist.env"))
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)

	r, err := CharacterRune("#")
	req.NoError(err)
	req.Equal('#', r)

	_, err = CharacterRune("##")
	req.Error(err)
	_, err = CharacterRune("")
	req.Error(err)
}
