package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"glowrs/internal/config"
	"glowrs/internal/hub"
	"glowrs/internal/repo"
)

func newPullCmd(g *globalFlags) *cobra.Command {
	var (
		files    []string
		quiet    bool
		optional []string
	)
	cmd := &cobra.Command{
		Use:     "pull [owner/model[:revision]...]",
		Short:   "Download model files into the cache",
		Example: "  glowrs pull jinaai/jina-embeddings-v2-small-en\n  glowrs pull --backend llama org/model-gguf",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if err := finishConfig(cmd, &cfg); err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 {
				ids = cfg.ModelRepos
			}
			req, opt := files, optional
			if len(req) == 0 {
				req, opt = backendFiles(cfg)
			}
			return Pull(cmd.Context(), cfg, ids, req, opt, !quiet, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "Files to fetch (default: what the backend needs)")
	cmd.Flags().StringSliceVar(&optional, "optional", nil, "Files to fetch when present")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide progress bars")
	return cmd
}

// backendFiles lists the repository files a backend loads.
func backendFiles(cfg config.Config) (required, optional []string) {
	switch strings.ToLower(cfg.Backend) {
	case "llama":
		return []string{cfg.Llama.ModelFile}, nil
	default:
		return []string{"config.json", "tokenizer.json", "onnx/model.onnx"}, []string{"tokenizer_config.json", "special_tokens_map.json"}
	}
}

// Pull fetches files of every identifier into the hub cache and prints
// where they are.
func Pull(ctx context.Context, cfg config.Config, identifiers, files, optional []string, progress bool, out io.Writer) error {
	var opts []hub.Option
	if progress {
		opts = append(opts, hub.WithProgress(func(file string, size int64) io.Writer {
			return &progressWriter{bar: progressbar.NewOptions64(size,
				progressbar.OptionSetWriter(out),
				progressbar.OptionSetDescription(file),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(30),
				progressbar.OptionClearOnFinish(),
			)}
		}))
	}
	h, err := newHub(cfg, opts...)
	if err != nil {
		return err
	}
	for _, id := range identifiers {
		ref, err := repo.Parse(id)
		if err != nil {
			return err
		}
		paths, err := h.FetchAll(ctx, ref, files, optional...)
		if err != nil {
			return fmt.Errorf("pull %s: %w", ref, err)
		}
		for _, f := range append(append([]string(nil), files...), optional...) {
			if p, ok := paths[f]; ok {
				fmt.Fprintf(out, "%s\t%s\t%s\n", ref, f, p)
			}
		}
	}
	return nil
}

// progressWriter finishes its bar when the download ends.
type progressWriter struct {
	bar *progressbar.ProgressBar
}

func (p *progressWriter) Write(b []byte) (int, error) { return p.bar.Write(b) }

func (p *progressWriter) Close() error { return p.bar.Finish() }
