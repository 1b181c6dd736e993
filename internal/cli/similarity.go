package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"glowrs/internal/config"
	"glowrs/internal/embed"
)

// exampleSentences are embedded when no sentences are given.
var exampleSentences = []string{
	"The cat sits outside",
	"A man is playing guitar",
	"I love pasta",
	"The new movie is awesome",
	"The cat plays in the garden",
	"A woman watches TV",
	"The new movie is so great",
	"Do you like pizza?",
}

func newSimilarityCmd(g *globalFlags) *cobra.Command {
	var (
		model string
		top   int
	)
	cmd := &cobra.Command{
		Use:     "similarity [sentence...]",
		Short:   "Print the most similar sentence pairs",
		Example: "  glowrs similarity\n  glowrs similarity -m org/model --top 3 \"a cat\" \"a dog\" \"pasta\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if err := finishConfig(cmd, &cfg); err != nil {
				return err
			}
			if model == "" {
				model = cfg.ModelRepos[0]
			}
			sentences := args
			if len(sentences) == 0 {
				sentences = exampleSentences
			}
			return Similarity(cmd.Context(), cfg, model, sentences, top, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&model, "model-repo", "m", "", "Model as owner/model[:revision] (default: first configured model)")
	cmd.Flags().IntVarP(&top, "top", "n", 5, "Number of pairs to print")
	return cmd
}

// Similarity embeds sentences with model on a dedicated worker and writes
// the top most similar pairs to out.
func Similarity(ctx context.Context, cfg config.Config, model string, sentences []string, top int, out io.Writer) error {
	if len(sentences) < 2 {
		return fmt.Errorf("need at least two sentences, got %d", len(sentences))
	}
	h, err := newHub(cfg)
	if err != nil {
		return err
	}
	loader, err := newLoader(cfg, h)
	if err != nil {
		return err
	}
	state, err := newState(ctx, cfg, []string{model}, loader, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = state.Shutdown(sctx)
	}()
	if failures := state.Failures(); len(failures) > 0 {
		return failures[0]
	}
	client, err := state.Get("")
	if err != nil {
		return err
	}
	resp, err := client.Submit(ctx, embed.Request{Inputs: sentences, Normalize: true})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Using model %s (%d dimensions)\n", client.Name(), resp.Dimensions)
	for _, p := range embed.TopPairs(resp.Embeddings, top) {
		fmt.Fprintf(out, "score: %.2f '%s' '%s'\n", p.Score, sentences[p.I], sentences[p.J])
	}
	return nil
}
