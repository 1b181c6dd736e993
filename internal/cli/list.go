package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"glowrs/internal/config"
	"glowrs/internal/hub"
	"glowrs/internal/registry"
	"glowrs/internal/repo"
)

func newListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List models in the download cache",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if err := finishConfig(cmd, &cfg); err != nil {
				return err
			}
			return List(cfg, cmd.OutOrStdout())
		},
	}
}

// List prints the cached repositories as a table.
func List(cfg config.Config, out io.Writer) error {
	entries, err := registry.Scan(cfg.CacheDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintf(out, "no models cached in %s\n", cfg.CacheDir)
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tFILES\tSIZE\tBACKENDS")
	for _, e := range entries {
		backends := strings.Join(e.Backends(), ",")
		if backends == "" {
			backends = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Ref, len(e.Files), units.HumanSize(float64(e.Size)), backends)
	}
	return tw.Flush()
}

func newRmCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "rm owner/model[:revision]...",
		Aliases: []string{"remove"},
		Short:   "Delete cached model files",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if err := finishConfig(cmd, &cfg); err != nil {
				return err
			}
			return Remove(cfg, args, cmd.OutOrStdout())
		},
	}
}

// Remove deletes every identifier from the cache. Identifiers that are not
// cached are an error; the others are still removed.
func Remove(cfg config.Config, identifiers []string, out io.Writer) error {
	h, err := hub.New(cfg.CacheDir)
	if err != nil {
		return err
	}
	var missing []string
	for _, id := range identifiers {
		ref, err := repo.Parse(id)
		if err != nil {
			return err
		}
		_, ok, err := registry.Find(h.Dir(), ref)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, id)
			continue
		}
		if err := h.Remove(ref); err != nil {
			return fmt.Errorf("rm %s: %w", id, err)
		}
		fmt.Fprintf(out, "removed %s\n", ref)
	}
	if len(missing) > 0 {
		return fmt.Errorf("not cached: %s", strings.Join(missing, ", "))
	}
	return nil
}
