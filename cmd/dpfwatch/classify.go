package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/dpfwatch/internal/device"
	"golang.org/x/term"
)

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify NAME...",
		Short: "Check adapter names against the diagnostic vocabulary",
		Long: `Report for each name whether it identifies an OBD diagnostic adapter.

The match is a case-insensitive substring test against the fragments:
` + fmt.Sprint(device.Vocabulary()),
		Args: cobra.MinimumNArgs(1),
		RunE: runClassify,
	}
	cmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
	cmd.Flags().String("color", "auto", "Colorize output (auto, always, never)")
	return cmd
}

type classification struct {
	Name       string `json:"name"`
	Diagnostic bool   `json:"diagnostic"`
	Fragment   string `json:"fragment,omitempty"`
}

func classifyNames(names []string) []classification {
	out := make([]classification, 0, len(names))
	for _, name := range names {
		fragment, ok := device.MatchFragment(name)
		out = append(out, classification{Name: name, Diagnostic: ok, Fragment: fragment})
	}
	return out
}

func runClassify(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	colorMode, _ := cmd.Flags().GetString("color")

	useColor, err := resolveColor(colorMode, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	results := classifyNames(args)
	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "text":
		return writeClassifications(cmd.OutOrStdout(), results, useColor)
	default:
		return fmt.Errorf("%w: format '%s': must be one of [text json]", ErrInvalidArgument, format)
	}
}

func writeClassifications(w io.Writer, results []classification, useColor bool) error {
	yes := color.New(color.FgGreen, color.Bold)
	no := color.New(color.FgRed)
	if useColor {
		yes.EnableColor()
		no.EnableColor()
	} else {
		yes.DisableColor()
		no.DisableColor()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERDICT\tMATCH")
	for _, r := range results {
		verdict := no.Sprint("other")
		match := "-"
		if r.Diagnostic {
			verdict = yes.Sprint("diagnostic")
			match = r.Fragment
		}
		name := r.Name
		if name == "" {
			name = `""`
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, verdict, match)
	}
	return tw.Flush()
}

// resolveColor decides whether output written to w gets ANSI colors.
func resolveColor(mode string, w io.Writer) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("%w: color '%s': must be one of [auto always never]", ErrInvalidArgument, mode)
	}
}
