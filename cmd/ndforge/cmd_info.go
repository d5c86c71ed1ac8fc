package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ndforge/cmd/ndforge/ui"
	"ndforge/internal/build"
	"ndforge/internal/libspec"
	"ndforge/internal/manifest"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var infoRaw bool

// infoCmd describes a built library
var infoCmd = &cobra.Command{
	Use:   "info [library]",
	Short: "Describe a built library",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoRaw, "raw", false, "Print markdown without rendering")
}

func runInfo(cmd *cobra.Command, args []string) error {
	dir := cfg.LibraryDir(args[0])
	m, err := manifest.Load(cfg.ManifestPath(args[0]))
	if err != nil {
		return err
	}
	var spec *libspec.Spec
	if _, err := os.Stat(filepath.Join(dir, build.InputFile)); err == nil {
		if spec, err = libspec.Load(filepath.Join(dir, build.InputFile)); err != nil {
			return err
		}
	}

	md := libraryMarkdown(args[0], spec, m)
	if infoRaw {
		_, err := fmt.Fprint(cmd.OutOrStdout(), md)
		return err
	}

	styles := ui.DefaultStyles()
	style := glamour.WithStylePath("light")
	if styles.Theme.IsDark {
		style = glamour.WithAutoStyle()
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
	return err
}

// libraryMarkdown summarizes a library. spec may be nil when the library
// was not built by ndforge.
func libraryMarkdown(name string, spec *libspec.Spec, m *manifest.Manifest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", name)
	if spec != nil {
		if spec.Summary != "" {
			fmt.Fprintf(&sb, "*%s*\n\n", strings.TrimSpace(spec.Summary))
		}
		if spec.Description != "" {
			fmt.Fprintf(&sb, "%s\n\n", strings.TrimSpace(spec.Description))
		}
	}

	sb.WriteString("| Kind | Materials | Reused |\n|---|---|---|\n")
	counts := m.Count()
	reused := make(map[manifest.Kind]int)
	for _, e := range m.Entries() {
		if filepath.IsAbs(e.Path) {
			reused[e.Kind]++
		}
	}
	for _, kind := range manifest.Kinds {
		fmt.Fprintf(&sb, "| %s | %d | %d |\n", kind, counts[kind], reused[kind])
	}

	if spec != nil {
		sb.WriteString("\n## Sources\n\n")
		blocks := []struct {
			kind manifest.Kind
			req  *libspec.Request
		}{
			{manifest.Neutron, spec.Neutron},
			{manifest.Photon, spec.Photon},
			{manifest.Thermal, spec.TSL},
		}
		for _, b := range blocks {
			if b.req == nil {
				continue
			}
			fmt.Fprintf(&sb, "- **%s**: base `%s`", b.kind, orNone(b.req.Base))
			if libs := b.req.AddLibraries(); len(libs) > 0 {
				fmt.Fprintf(&sb, ", adds from `%s`", strings.Join(libs, "`, `"))
			}
			if b.req.Reuse != "" {
				fmt.Fprintf(&sb, ", reuses `%s`", b.req.Reuse)
			}
			if len(b.req.Temperatures) > 0 {
				fmt.Fprintf(&sb, ", temperatures %v", b.req.Temperatures)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
