package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("BARLEY_FIELD", "")

	cfg, err := InitConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".barley"), cfg.Home)
	assert.Equal(t, filepath.Join(home, ".ssh", "id_ed25519"), cfg.SSH.Key)
	assert.Equal(t, filepath.Join(home, ".ssh", "known_hosts"), cfg.SSH.KnownHosts)
	assert.Equal(t, "root", cfg.SSH.User)
	assert.Equal(t, "br0", cfg.Machine.Bridge)
	assert.Equal(t, time.Second, cfg.Machine.WaitUnit)
	assert.Empty(t, cfg.Field)
}

func TestInitConfigFieldFromEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BARLEY_FIELD", "lab")

	cfg, err := InitConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "lab", cfg.Field)
}

func TestInitConfigFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BARLEY_FIELD", "lab")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("field", "", "")
	require.NoError(t, flags.Parse([]string{"--field", "prod"}))

	cfg, err := InitConfig(flags)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Field)
}

func TestRunUnknownCommand(t *testing.T) {
	err := run([]string{"harvest"})
	assert.ErrorContains(t, err, "unknown command")
}

func TestRunFieldsCreatesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, run([]string{"fields"}))
	assert.DirExists(t, filepath.Join(home, ".barley", "fields"))
}

func TestRunNewMissingAdminKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	err := run([]string{"new", "lab", "--key", filepath.Join(home, "missing.pub")})
	assert.Error(t, err)
	assert.NoDirExists(t, filepath.Join(home, ".barley", "fields", "lab"))
}

func TestRunStartUnknownImage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	err := run([]string{"start", "cereal"})
	assert.Error(t, err)
}
