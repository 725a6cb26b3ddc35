package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Command groups of the root command. Every top-level command belongs to one.
const (
	groupFile     = "file"
	groupRequest  = "request"
	groupTemplate = "template"
	groupJobs     = "jobs"
	groupCLI      = "cli"
)

func commandGroups() []*cobra.Group {
	return []*cobra.Group{
		{ID: groupFile, Title: "File inspection:"},
		{ID: groupRequest, Title: "Import requests:"},
		{ID: groupTemplate, Title: "Job templates:"},
		{ID: groupJobs, Title: "Derived jobs:"},
		{ID: groupCLI, Title: "CLI:"},
	}
}

// CommandEntry describes one runnable command.
type CommandEntry struct {
	Path    string      `json:"path"`
	Usage   string      `json:"usage"`
	Group   string      `json:"group"`
	Short   string      `json:"short"`
	Long    string      `json:"long,omitempty"`
	Example string      `json:"example,omitempty"`
	Args    []ArgEntry  `json:"args,omitempty"`
	Flags   []FlagEntry `json:"flags,omitempty"`
}

// ArgEntry is a positional argument taken from a command's Use line.
type ArgEntry struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional,omitempty"`
	Repeated bool   `json:"repeated,omitempty"`
}

// FlagEntry is a local flag of a command.
type FlagEntry struct {
	Name     string `json:"name"`
	Short    string `json:"shorthand,omitempty"`
	Type     string `json:"type"`
	Default  string `json:"default,omitempty"`
	Usage    string `json:"usage,omitempty"`
	Required bool   `json:"required,omitempty"`
}

func newCommandsCmd() *cobra.Command {
	var (
		filter string
		group  string
	)

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List runnable commands with their arguments and flags",
		Long: `Lists every runnable command with its group, positional arguments and
local flags. Works without configuration or a metastore.`,
		Example: `  isi commands --group request
  isi commands --filter mapping -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries := collectCommands(cmd.Root())
			entries = selectCommands(entries, group, filter)

			if getOutputFormat(cmd) == "json" {
				if entries == nil {
					entries = []CommandEntry{}
				}
				return PrintJSON(cmd.OutOrStdout(), entries)
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Group, e.Usage, e.Short})
			}
			PrintTable(cmd.OutOrStdout(), []string{"group", "usage", "description"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Case-insensitive match on path and descriptions")
	cmd.Flags().StringVar(&group, "group", "", "Only commands of this group (file, request, template, jobs, cli)")
	return cmd
}

// collectCommands returns the runnable commands below root ordered by group
// and path.
func collectCommands(root *cobra.Command) []CommandEntry {
	var entries []CommandEntry
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		for _, child := range c.Commands() {
			if child.Hidden || child.Name() == "help" || child.Name() == "completion" {
				continue
			}
			if child.Runnable() {
				entries = append(entries, describeCommand(child))
			}
			walk(child)
		}
	}
	walk(root)

	order := make(map[string]int)
	for i, g := range commandGroups() {
		order[g.ID] = i
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Group != entries[j].Group {
			return order[entries[i].Group] < order[entries[j].Group]
		}
		return entries[i].Path < entries[j].Path
	})
	return entries
}

func selectCommands(entries []CommandEntry, group, filter string) []CommandEntry {
	filter = strings.ToLower(filter)
	var out []CommandEntry
	for _, e := range entries {
		if group != "" && e.Group != group {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(e.Path+" "+e.Short+" "+e.Long), filter) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func describeCommand(c *cobra.Command) CommandEntry {
	path := strings.TrimPrefix(c.CommandPath(), c.Root().Name()+" ")
	args := parseUseArgs(c.Use)

	usage := []string{path}
	for _, a := range args {
		name := "<" + a.Name + ">"
		if a.Optional {
			name = "[" + a.Name + "]"
		}
		if a.Repeated {
			name += "..."
		}
		usage = append(usage, name)
	}

	return CommandEntry{
		Path:    path,
		Usage:   strings.Join(usage, " "),
		Group:   topLevel(c).GroupID,
		Short:   c.Short,
		Long:    c.Long,
		Example: c.Example,
		Args:    args,
		Flags:   localFlags(c),
	}
}

// topLevel returns the ancestor of c directly below the root.
func topLevel(c *cobra.Command) *cobra.Command {
	for c.HasParent() && c.Parent().HasParent() {
		c = c.Parent()
	}
	return c
}

// parseUseArgs reads the positional arguments of a Use line such as
// "bind ID TEMPLATE FIELD [SOURCE]" or "unbind ID TEMPLATE FIELD...".
func parseUseArgs(use string) []ArgEntry {
	fields := strings.Fields(use)
	if len(fields) < 2 {
		return nil
	}
	args := make([]ArgEntry, 0, len(fields)-1)
	for _, f := range fields[1:] {
		var a ArgEntry
		if strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]") {
			a.Optional = true
			f = strings.TrimSuffix(strings.TrimPrefix(f, "["), "]")
		}
		if strings.HasSuffix(f, "...") {
			a.Repeated = true
			f = strings.TrimSuffix(f, "...")
		}
		f = strings.Trim(f, "<>")
		if strings.Contains(f, "|") {
			// Alternatives such as [bash|zsh] name one choice argument.
			a.Name = f
		} else {
			a.Name = strings.ToLower(f)
		}
		args = append(args, a)
	}
	return args
}

func localFlags(c *cobra.Command) []FlagEntry {
	var flags []FlagEntry
	c.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		entry := FlagEntry{
			Name:    f.Name,
			Short:   f.Shorthand,
			Type:    f.Value.Type(),
			Default: f.DefValue,
			Usage:   f.Usage,
		}
		if ann := f.Annotations[cobra.BashCompOneRequiredFlag]; len(ann) > 0 && ann[0] == "true" {
			entry.Required = true
		}
		flags = append(flags, entry)
	})
	return flags
}
