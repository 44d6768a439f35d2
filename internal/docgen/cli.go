package docgen

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RenderCLIMarkdown writes a CLI reference by walking a cobra command
// tree: global flags first, then one section per visible command with its
// synopsis, example, local flags and subcommands.
func RenderCLIMarkdown(w io.Writer, root *cobra.Command) error {
	var b strings.Builder
	b.WriteString("# CLI Reference\n\n")
	b.WriteString(generatedNote)

	if flags := visibleFlags(root.PersistentFlags()); len(flags) > 0 {
		b.WriteString("## Global Flags\n\n")
		writeFlagTable(&b, flags)
	}
	walkCommands(&b, root)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteCLIMarkdown writes the CLI reference to path atomically.
func WriteCLIMarkdown(path string, root *cobra.Command) error {
	return WriteFile(path, func(w io.Writer) error { return RenderCLIMarkdown(w, root) })
}

func walkCommands(b *strings.Builder, cmd *cobra.Command) {
	renderCommand(b, cmd)
	for _, child := range cmd.Commands() {
		if !child.Hidden {
			walkCommands(b, child)
		}
	}
}

func renderCommand(b *strings.Builder, cmd *cobra.Command) {
	fmt.Fprintf(b, "## %s\n\n", cmd.CommandPath())

	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	if desc != "" {
		fmt.Fprintf(b, "%s\n\n", strings.TrimSpace(desc))
	}
	fmt.Fprintf(b, "```\n%s\n```\n\n", cmd.UseLine())
	if cmd.Example != "" {
		fmt.Fprintf(b, "**Example:**\n\n```\n%s\n```\n\n", strings.TrimSpace(cmd.Example))
	}
	if flags := visibleFlags(cmd.LocalNonPersistentFlags()); len(flags) > 0 {
		writeFlagTable(b, flags)
	}

	var children []*cobra.Command
	for _, c := range cmd.Commands() {
		if !c.Hidden {
			children = append(children, c)
		}
	}
	if len(children) == 0 {
		return
	}
	b.WriteString("| Subcommand | Description |\n")
	b.WriteString("|------------|-------------|\n")
	for _, c := range children {
		anchor := strings.ToLower(strings.ReplaceAll(c.CommandPath(), " ", "-"))
		fmt.Fprintf(b, "| [%s](#%s) | %s |\n", c.CommandPath(), anchor, c.Short)
	}
	b.WriteString("\n")
}

// flagInfo holds rendered flag metadata.
type flagInfo struct {
	Name    string
	Type    string
	Default string
	Desc    string
}

func visibleFlags(fs *pflag.FlagSet) []flagInfo {
	var flags []flagInfo
	fs.VisitAll(func(f *pflag.Flag) {
		if !f.Hidden {
			flags = append(flags, newFlagInfo(f))
		}
	})
	return flags
}

// newFlagInfo extracts display info from a pflag.Flag.
func newFlagInfo(f *pflag.Flag) flagInfo {
	name := "`--" + f.Name + "`"
	if f.Shorthand != "" {
		name = "`-" + f.Shorthand + "`, " + name
	}
	defVal := ""
	if !isZeroDefault(f.DefValue, f.Value.Type()) {
		defVal = "`" + f.DefValue + "`"
	}
	return flagInfo{
		Name:    name,
		Type:    f.Value.Type(),
		Default: defVal,
		Desc:    strings.ReplaceAll(f.Usage, "|", "\\|"),
	}
}

// isZeroDefault reports whether val is the zero value for a flag of typ.
func isZeroDefault(val, typ string) bool {
	switch typ {
	case "bool":
		return val == "false"
	case "int", "int32", "int64", "uint", "uint32", "uint64", "float32", "float64":
		return val == "0"
	case "stringSlice", "stringArray":
		return val == "[]"
	}
	return val == ""
}

func writeFlagTable(b *strings.Builder, flags []flagInfo) {
	b.WriteString("| Flag | Type | Default | Description |\n")
	b.WriteString("|------|------|---------|-------------|\n")
	for _, f := range flags {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", f.Name, f.Type, f.Default, f.Desc)
	}
	b.WriteString("\n")
}
