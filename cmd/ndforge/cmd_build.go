package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"ndforge/cmd/ndforge/ui"
	"ndforge/internal/build"
	"ndforge/internal/libspec"

	"github.com/spf13/cobra"
)

var (
	buildJobs         int
	buildDryRun       bool
	buildTemperatures string
	buildClean        bool
	buildYes          bool
	buildWatch        bool
)

// buildCmd builds a library from a specification file
var buildCmd = &cobra.Command{
	Use:   "build [spec.yml]",
	Short: "Build a library from its YAML description",
	Long: `Resolves the YAML description, converts every selected tape with the
processing toolchain and writes <library_root>/<name>/cross_sections.xml.

Artifacts already present are kept; neutron artifacts missing requested
temperatures are extended in place. Reruns are therefore cheap.

Example:
  ndforge build mylib.yml -j 8 -T "293 600 900"`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().IntVarP(&buildJobs, "jobs", "j", 0, "Parallel toolchain runs (default: build.parallelism)")
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "Print what would be built without running anything")
	buildCmd.Flags().StringVarP(&buildTemperatures, "temperatures", "T", "", "Override neutron temperatures, e.g. \"293 600\"")
	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Remove the library directory first")
	buildCmd.Flags().BoolVarP(&buildYes, "yes", "y", false, "Do not ask before --clean removes files")
	buildCmd.Flags().BoolVar(&buildWatch, "watch", false, "Rebuild whenever the YAML file changes")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	styles := ui.DefaultStyles()

	progress := ui.NewProgressObserver(out, styles)
	opts := build.Options{
		DryRun:      buildDryRun,
		Parallelism: buildJobs,
		Clean:       buildClean,
		Observer:    progress,
	}
	if buildTemperatures != "" {
		temps, err := libspec.ParseTemperatures(buildTemperatures)
		if err != nil {
			return err
		}
		opts.Temperatures = temps
	}

	spec, err := libspec.Load(args[0])
	if err != nil {
		return err
	}
	if opts.Clean && !opts.DryRun && !buildYes {
		ok, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Remove %s before building?", cfg.LibraryDir(spec.Name)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, styles.Muted.Render("aborted"))
			return nil
		}
	}

	builder, err := build.NewBuilder(cfg, nil, nil)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if buildWatch {
		return builder.Watch(ctx, args[0], opts, func(res *build.Result, err error) {
			reportBuild(out, styles, res, err)
			progress.Reset()
		})
	}

	res, err := builder.Build(ctx, spec, opts)
	if err != nil {
		return err
	}
	reportBuild(out, styles, res, nil)
	return nil
}

func reportBuild(w io.Writer, styles ui.Styles, res *build.Result, err error) {
	if err != nil {
		fmt.Fprintln(w, styles.Error.Render("build failed: ")+err.Error())
		return
	}
	for _, warning := range res.Warnings {
		fmt.Fprintln(w, styles.Warning.Render("warning: ")+warning)
	}
	if res.Manifest == nil {
		fmt.Fprintf(w, "%s %d items would be built into %s\n", styles.Info.Render("dry run:"), len(res.Plan.Items), res.Root)
		return
	}
	fmt.Fprintf(w, "%s %s: %d entries (%d built, %d reused)\n", styles.Success.Render("done"),
		res.Root, res.Manifest.Len(), len(res.Plan.Items), len(res.Plan.Reused))
}

func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
