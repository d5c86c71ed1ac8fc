package main

import (
	"fmt"
	"io"

	"ndforge/cmd/ndforge/ui"
	"ndforge/internal/remediate"

	"github.com/spf13/cobra"
)

var (
	remediateSources []string
	remediateChannel int
	remediateDryRun  bool
	scanChannel      int
)

// remediateCmd repairs negative values of one channel in a built library
var remediateCmd = &cobra.Command{
	Use:   "remediate [library]",
	Short: "Replace negative cross sections from donor libraries",
	Long: `Scans every neutron artifact of the library for negative values in one
reaction channel (301, heating, by default). Each offending material is
overwritten from the first source library that has it clean at every target
temperature; materials without such a donor get their negatives set to zero.

Example:
  ndforge remediate mylib --sources endfb8,jeff33 --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runRemediate,
}

// scanCmd reports negative values without repairing them
var scanCmd = &cobra.Command{
	Use:   "scan [library]",
	Short: "List materials with negative values in a channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	remediateCmd.Flags().StringSliceVarP(&remediateSources, "sources", "s", nil, "Donor libraries, in order of preference")
	remediateCmd.Flags().IntVar(&remediateChannel, "channel", remediate.DefaultChannel, "Reaction channel (MT number)")
	remediateCmd.Flags().BoolVar(&remediateDryRun, "dry-run", false, "Report decisions without modifying artifacts")

	scanCmd.Flags().IntVar(&scanChannel, "channel", remediate.DefaultChannel, "Reaction channel (MT number)")
}

func runRemediate(cmd *cobra.Command, args []string) error {
	target, err := remediate.LoadLibrary(args[0], cfg.LibraryDir(args[0]))
	if err != nil {
		return err
	}
	pass := &remediate.Pass{Target: target, Channel: remediateChannel, DryRun: remediateDryRun}
	for _, name := range remediateSources {
		src, err := remediate.LoadLibrary(name, cfg.LibraryDir(name))
		if err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
		pass.Sources = append(pass.Sources, src)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	report, err := pass.Run(ctx)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), ui.DefaultStyles(), report)
	return nil
}

func printReport(w io.Writer, styles ui.Styles, r *remediate.Report) {
	title := fmt.Sprintf("%s, channel %d", r.Target, r.Channel)
	if r.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(w, styles.Title.Render(title))
	for _, d := range r.Decisions {
		switch d.Action {
		case remediate.ActionReplace:
			fmt.Fprintf(w, "  %s %s from %s at %v\n", styles.Success.Render("replace  "), d.Material, d.Donor, d.Offending)
		case remediate.ActionZeroFill:
			fmt.Fprintf(w, "  %s %s at %v\n", styles.Warning.Render("zero-fill"), d.Material, d.Offending)
		}
		for _, rej := range d.Rejected {
			fmt.Fprintf(w, "      %s\n", styles.Muted.Render(rej.Source+": "+rej.Reason))
		}
	}
	fmt.Fprintf(w, "%d clean, %d replaced, %d zero-filled\n",
		r.Count(remediate.ActionNone), r.Count(remediate.ActionReplace), r.Count(remediate.ActionZeroFill))
}

func runScan(cmd *cobra.Command, args []string) error {
	lib, err := remediate.LoadLibrary(args[0], cfg.LibraryDir(args[0]))
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	findings, err := remediate.Scan(ctx, lib.Manifest, lib.Dir, scanChannel)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	styles := ui.DefaultStyles()
	if len(findings) == 0 {
		fmt.Fprintf(out, "%s no negative values in channel %d\n", styles.Success.Render(lib.Name+":"), scanChannel)
		return nil
	}
	for _, m := range findings.Materials() {
		fmt.Fprintf(out, "%s negative at %v\n", m, findings[m].Temperatures)
	}
	fmt.Fprintln(out, styles.Warning.Render(fmt.Sprintf("%d materials with negative values in channel %d", len(findings), scanChannel)))
	return nil
}
