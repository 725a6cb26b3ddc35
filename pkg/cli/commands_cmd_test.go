package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listCommands(t *testing.T, args ...string) []CommandEntry {
	t.Helper()
	out, err := runCLI(t, append([]string{"--output", "json", "commands"}, args...)...)
	require.NoError(t, err)
	var entries []CommandEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries), "output should be valid JSON")
	return entries
}

func findCommand(t *testing.T, entries []CommandEntry, path string) CommandEntry {
	t.Helper()
	for _, e := range entries {
		if e.Path == path {
			return e
		}
	}
	t.Fatalf("command %q not listed", path)
	return CommandEntry{}
}

func TestCommands_GroupsFollowCommandTree(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	entries := listCommands(t)
	tests := []struct {
		path  string
		group string
	}{
		{"sheets", groupFile},
		{"header", groupFile},
		{"preview", groupFile},
		{"sources", groupRequest},
		{"request create", groupRequest},
		{"request bind", groupRequest},
		{"template load", groupTemplate},
		{"jobs list", groupJobs},
		{"resync", groupJobs},
		{"config show", groupCLI},
		{"version", groupCLI},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.group, findCommand(t, entries, tt.path).Group, tt.path)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.NotContains(t, paths, "completion")
	assert.NotContains(t, paths, "request", "command groups without a run function are not listed")
	assert.Equal(t, groupFile, entries[0].Group, "entries are ordered by group")
	assert.Equal(t, groupCLI, entries[len(entries)-1].Group)
}

func TestCommands_PositionalArgsFromUse(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	entries := listCommands(t)

	bind := findCommand(t, entries, "request bind")
	assert.Equal(t, "request bind <id> <template> <field> [source]", bind.Usage)
	assert.Equal(t, []ArgEntry{
		{Name: "id"}, {Name: "template"}, {Name: "field"}, {Name: "source", Optional: true},
	}, bind.Args)

	unbind := findCommand(t, entries, "request unbind")
	assert.Equal(t, "request unbind <id> <template> <field>...", unbind.Usage)
	require.Len(t, unbind.Args, 3)
	assert.True(t, unbind.Args[2].Repeated)

	create := findCommand(t, entries, "request create")
	assert.Equal(t, "request create", create.Usage)
	assert.Empty(t, create.Args)
}

func TestParseUseArgs(t *testing.T) {
	tests := []struct {
		use  string
		want []ArgEntry
	}{
		{"list", nil},
		{"show ID", []ArgEntry{{Name: "id"}}},
		{"sources REQUEST TEMPLATE", []ArgEntry{{Name: "request"}, {Name: "template"}}},
		{"use-profile <name>", []ArgEntry{{Name: "name"}}},
		{"unbind ID FIELD...", []ArgEntry{{Name: "id"}, {Name: "field", Repeated: true}}},
		{"completion [bash|zsh]", []ArgEntry{{Name: "bash|zsh", Optional: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			got := parseUseArgs(tt.use)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommands_LocalFlagsOnly(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	create := findCommand(t, listCommands(t, "--group", groupRequest), "request create")
	byName := make(map[string]FlagEntry, len(create.Flags))
	for _, f := range create.Flags {
		byName[f.Name] = f
	}
	assert.True(t, byName["label"].Required)
	assert.True(t, byName["template"].Required)
	assert.False(t, byName["sheet"].Required)
	assert.Equal(t, "int", byName["header-row"].Type)
	assert.NotContains(t, byName, "output", "persistent root flags are not repeated per command")
}

func TestCommands_Filter(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	entries := listCommands(t, "--filter", "ACTIVATE")
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Contains(t, strings.ToLower(e.Path+" "+e.Short+" "+e.Long), "activate")
	}

	assert.Equal(t, []CommandEntry{}, listCommands(t, "--filter", "zzz_nonexistent_xyz_999"))
}

func TestCommands_FilterGroup(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	entries := listCommands(t, "--group", groupJobs)
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"jobs list", "resync"}, paths)
}

func TestCommands_TableOutput(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := runCLI(t, "commands", "--group", groupJobs)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"GROUP", "USAGE", "DESCRIPTION"}, strings.Fields(lines[0]))
	assert.True(t, strings.HasPrefix(lines[1], "jobs   jobs list <request>"), lines[1])
}

func TestRootHelpShowsGroups(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	for _, g := range commandGroups() {
		assert.Contains(t, out, g.Title)
	}
}
