package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"certagent/internal/app"
	"certagent/internal/config"
	"certagent/internal/surface"
)

var (
	home    string
	verbose bool
	quiet   bool

	settings *config.Config
	logger   = zerolog.Nop()
	logFile  io.Closer
	wire     *app.Wire
)

// Execute runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:          "certagent",
		Short:        "Delegated identity sessions and certified call polling",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".certagent")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			cfg, err := config.Load(cmd.Context(), home)
			if err != nil {
				return err
			}
			settings = cfg
			logger, logFile = initLogger(home, cfg.Log, verbose, quiet)
			cmd.SetContext(logger.WithContext(cmd.Context()))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire != nil {
				if err := wire.Close(); err != nil {
					logger.Warn().Err(err).Msg("close storage")
				}
			}
			if logFile != nil {
				return logFile.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.certagent)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")

	root.AddCommand(loginCmd(), logoutCmd(), whoamiCmd(), callCmd(), pollCmd(), configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

// openWire builds the dependency graph. launch may be nil.
func openWire(ctx context.Context, launch surface.Launcher) (*app.Wire, error) {
	w, err := app.NewWire(ctx, app.Config{
		Home:     home,
		Settings: settings,
		Launch:   launch,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	wire = w
	return w, nil
}
