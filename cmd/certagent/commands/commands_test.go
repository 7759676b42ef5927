package commands

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certagent/internal/config"
)

func TestSelectLevel(t *testing.T) {
	tests := []struct {
		name           string
		verbose, quiet bool
		want           zerolog.Level
	}{
		{"default", false, false, zerolog.InfoLevel},
		{"verbose", true, false, zerolog.DebugLevel},
		{"quiet", false, true, zerolog.WarnLevel},
		{"verbose wins", true, true, zerolog.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectLevel(tt.verbose, tt.quiet))
		})
	}
}

func TestInitLoggerWritesLogFile(t *testing.T) {
	home := t.TempDir()
	log, closer := initLogger(home, config.LogConfig{FileEnabled: true, MaxSizeMB: 1, MaxBackups: 1}, false, true)
	require.NotNil(t, closer)
	log.Warn().Msg("hello")
	require.NoError(t, closer.Close())
	assert.FileExists(t, filepath.Join(home, logsDir, logFileName))

	_, closer = initLogger(home, config.LogConfig{}, false, false)
	assert.Nil(t, closer)
}

func TestParseScope(t *testing.T) {
	p, err := parseScope("")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = parseScope("aaaaa-aa")
	require.NoError(t, err)
	assert.Empty(t, []byte(p))

	_, err = parseScope("not-a-principal")
	assert.Error(t, err)
}

func TestNewDevProviderIsStable(t *testing.T) {
	a, err := newDevProvider("https://identity.example/authorize")
	require.NoError(t, err)
	b, err := newDevProvider("https://identity.example/other")
	require.NoError(t, err)
	assert.Equal(t, "https://identity.example", a.Origin)
	assert.Equal(t, a.PublicKey, b.PublicKey)
}
