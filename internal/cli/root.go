// Package cli implements the glowrs command line: the embeddings server and
// a few tools built on the same model loading path.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"glowrs/internal/config"
	"glowrs/internal/logx"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string

	device     string
	backend    string
	pooling    string
	dimensions int
	cacheDir   string
	hubURL     string
}

// Execute runs the command line with args (without the program name).
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "glowrs",
		Short:         "Sentence embeddings server with an OpenAI compatible API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	g.register(root.PersistentFlags())

	root.AddCommand(newServeCmd(g), newSimilarityCmd(g), newPullCmd(g), newListCmd(g), newRmCmd(g), newVersionCmd())

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	root.AddCommand(completionCmd)
	return root
}

func (g *globalFlags) register(pf *pflag.FlagSet) {
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	pf.StringVar(&g.envFile, "env-file", "", "Load variables from this .env file (default ./.env if present)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error|off")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: console|json")
	pf.StringVar(&g.device, "device", "", "Device: cpu, cuda[:N] or metal[:N]")
	pf.StringVar(&g.backend, "backend", "", "Embedding backend: hash|onnx|llama")
	pf.StringVar(&g.pooling, "pooling", "", "Pooling strategy: mean|cls|max")
	pf.IntVar(&g.dimensions, "dimensions", 0, "Output width of the hash backend")
	pf.StringVar(&g.cacheDir, "cache-dir", "", "Model download cache")
	pf.StringVar(&g.hubURL, "hub-url", "", "Model hub base URL")
}

// Version is set at build time with -ldflags "-X glowrs/internal/cli.Version=...".
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), "glowrs "+Version+"\n")
			return err
		},
	}
}

// loadConfig resolves defaults, the config file, the environment and then
// the flags the user actually set, and configures logging from the result.
func loadConfig(cmd *cobra.Command, g *globalFlags) (config.Config, error) {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Resolve(g.configPath, nil)
	if err != nil {
		return cfg, err
	}
	fl := cmd.Flags()
	setStr := func(name string, dst *string, v string) {
		if fl.Changed(name) {
			*dst = v
		}
	}
	setStr("log-level", &cfg.LogLevel, g.logLevel)
	setStr("log-format", &cfg.LogFormat, g.logFormat)
	setStr("device", &cfg.Device, g.device)
	setStr("backend", &cfg.Backend, g.backend)
	setStr("pooling", &cfg.Pooling, g.pooling)
	setStr("cache-dir", &cfg.CacheDir, g.cacheDir)
	setStr("hub-url", &cfg.HubURL, g.hubURL)
	if fl.Changed("dimensions") {
		cfg.Dimensions = g.dimensions
	}
	return cfg, nil
}

// finishConfig validates cfg after command specific flags were applied and
// installs the logger.
func finishConfig(cmd *cobra.Command, cfg *config.Config) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	w := cmd.ErrOrStderr()
	if w == nil {
		w = os.Stderr
	}
	logx.SetOutput(cfg.LogFormat, w)
	logx.Configure(cfg.LogLevel)
	return nil
}
