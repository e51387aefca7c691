package cli

import (
	"context"
	"sync"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	configPath string
	output     string
	logLevel   string
}

// env is shared by all subcommands of one root. The App is built on first
// use so that --help and flag errors never touch the network or config.
type env struct {
	flags rootFlags
	opts  []Option

	once sync.Once
	app  *App
	err  error
}

func (e *env) App() (*App, error) {
	e.once.Do(func() {
		opts := e.opts
		if e.flags.logLevel != "" {
			opts = append(opts, WithLogLevel(e.flags.logLevel))
		}
		e.app, e.err = Bootstrap(e.flags.configPath, opts...)
	})
	return e.app, e.err
}

func (e *env) printer(cmd *cobra.Command) (printer, error) {
	format, err := ParseFormat(e.flags.output)
	if err != nil {
		return printer{}, err
	}
	return printer{w: cmd.OutOrStdout(), format: format}, nil
}

// NewRootCmd builds the command tree. opts are passed to Bootstrap.
func NewRootCmd(opts ...Option) *cobra.Command {
	e := &env{opts: opts}

	root := &cobra.Command{
		Use:   "covid-parser",
		Short: "Fetch COVID-19 case, death and recovery series",
		Long: "covid-parser reads per-day COVID-19 figures for Australia and its states\n" +
			"from published dashboard tables, and for other countries from\n" +
			"statistics pages, returning them as result envelopes.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&e.flags.configPath, "config", "c", "", "Configuration file (env: COVIDPARSER_*)")
	pf.StringVarP(&e.flags.output, "output", "o", string(FormatJSON), "Output format: json, yaml or table")
	pf.StringVar(&e.flags.logLevel, "log-level", "", "Override logger.level")

	root.AddCommand(newNewCmd(e))
	root.AddCommand(newTotalCmd(e))
	root.AddCommand(newSummaryCmd(e))
	root.AddCommand(newLocationsCmd(e))
	root.AddCommand(newServeCmd(e))
	return root
}

// Execute runs the CLI with ctx, which serve uses for shutdown.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
