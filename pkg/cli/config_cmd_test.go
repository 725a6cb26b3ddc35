package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, rt := newRoot()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if cerr := rt.close(); err == nil {
		err = cerr
	}
	return out.String(), err
}

func TestConfigSetProfile_CreatesConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := runCLI(t, "config", "set-profile", "--name", "ops",
		"--profile-meta-db", "/tmp/ops.sqlite", "--default-output", "json", "--operator", "alice")
	require.NoError(t, err)

	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	require.Contains(t, cfg.Profiles, "ops")
	assert.Equal(t, Profile{MetaDB: "/tmp/ops.sqlite", Output: "json", As: "alice"}, cfg.Profiles["ops"])
	assert.Equal(t, "default", cfg.CurrentProfile)
}

func TestConfigSetProfile_KeepsUnchangedFields(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "default",
		Profiles:       map[string]Profile{"default": {MetaDB: "a.sqlite", As: "bob"}},
	}))

	_, err := runCLI(t, "config", "set-profile", "--name", "default", "--operator", "carol")
	require.NoError(t, err)

	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, Profile{MetaDB: "a.sqlite", As: "carol"}, cfg.Profiles["default"])
}

func TestConfigSetProfile_InvalidOutput(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := runCLI(t, "config", "set-profile", "--name", "x", "--default-output", "xml")
	require.ErrorContains(t, err, `unsupported output format "xml"`)
}

func TestConfigUseProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "default",
		Profiles:       map[string]Profile{"default": {}, "staging": {}},
	}))

	out, err := runCLI(t, "-o", "json", "config", "use-profile", "staging")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "staging", got["active_profile"])

	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.CurrentProfile)

	_, err = runCLI(t, "config", "use-profile", "missing")
	require.EqualError(t, err, `profile "missing" not found`)
}

func TestConfigShow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "default",
		Profiles:       map[string]Profile{"default": {MetaDB: "meta.sqlite", Output: "table"}},
	}))

	out, err := runCLI(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "current-profile: default")
	assert.Contains(t, out, "meta-db: meta.sqlite")

	out, err = runCLI(t, "config", "show", "-o", "json")
	require.NoError(t, err)
	var cfg UserConfig
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "meta.sqlite", cfg.Profiles["default"].MetaDB)
}

func TestConfigShow_Missing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := runCLI(t, "config", "show")
	require.Error(t, err)
}

func TestProfileOutputAppliesWithoutFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ISI_OUTPUT", "")
	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "default",
		Profiles:       map[string]Profile{"default": {Output: "json"}},
	}))

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got), "profile output should select json: %s", out)

	out, err = runCLI(t, "-o", "table", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "(commit ")
}

func TestUnknownProfileFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := runCLI(t, "--profile", "nope", "version")
	require.EqualError(t, err, `profile "nope" not found`)
}
