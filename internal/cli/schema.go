// Package cli provides shared CLI utilities for the vectorgated command.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

// flagDoc is the machine-readable description of a single flag.
type flagDoc struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// commandDoc is the machine-readable description of a command tree.
type commandDoc struct {
	Name        string       `json:"name"`
	Use         string       `json:"use,omitempty"`
	Description string       `json:"description,omitempty"`
	Long        string       `json:"long,omitempty"`
	Flags       []flagDoc    `json:"flags,omitempty"`
	Subcommands []commandDoc `json:"subcommands,omitempty"`
}

func describeCommand(cmd *cobra.Command) commandDoc {
	doc := commandDoc{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
	}

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == helpJSONFlag || f.Name == "help" {
			return
		}
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		doc.Flags = append(doc.Flags, flagDoc{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
			Description: f.Usage,
			Required:    required,
		})
	})

	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" {
			continue
		}
		doc.Subcommands = append(doc.Subcommands, describeCommand(sub))
	}

	return doc
}

// AddHelpJSONFlag registers the --help-json flag on a command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(helpJSONFlag, false, "Output command schema as JSON")
}

// CheckHelpJSON scans os.Args for --help-json and, if present, prints the
// schema of the addressed subcommand and exits. Must run before Execute so
// the flag wins over argument validation.
func CheckHelpJSON(rootCmd *cobra.Command) {
	for i, arg := range os.Args {
		if arg != "--"+helpJSONFlag {
			continue
		}
		target := resolveCommand(rootCmd, os.Args[1:i])
		out, err := json.MarshalIndent(describeCommand(target), "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		os.Exit(0)
	}
}

// resolveCommand walks the command tree along args, stopping at the deepest
// matching subcommand.
func resolveCommand(cmd *cobra.Command, args []string) *cobra.Command {
	for len(args) > 0 {
		var next *cobra.Command
		for _, sub := range cmd.Commands() {
			if sub.Name() == args[0] || sub.HasAlias(args[0]) {
				next = sub
				break
			}
		}
		if next == nil {
			return cmd
		}
		cmd = next
		args = args[1:]
	}
	return cmd
}
