package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cinema-checkout-cli/config"
	"cinema-checkout-cli/logging"
	"cinema-checkout-cli/service"
	"cinema-checkout-cli/store"
)

const appName = "cinema-checkout-cli"

// BuildInfo is stamped by the release build.
type BuildInfo struct {
	Version string
	Commit  string
}

type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	store  store.SessionStore
}

// setup loads configuration and opens the logger and session store. The TUI
// commands pass console=false so log lines never draw over the screen.
func setup(ctx context.Context, cmd *cobra.Command, console bool) (*runtime, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}

	opts := logging.Options{Dir: cfg.Log.Path, Debug: cfg.Log.Debug}
	if console {
		opts.Console = cmd.ErrOrStderr()
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	sessions, err := store.Open(ctx, store.Options{
		Backend:       cfg.Store.Backend,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, store: sessions}, nil
}

func (r *runtime) client() *service.Client {
	return service.NewClient(
		&http.Client{Timeout: r.cfg.API.Timeout},
		service.WithBaseURL(r.cfg.API.BaseURL),
		service.WithUserID(r.cfg.User.ID),
		service.WithMaxAttempts(r.cfg.API.MaxAttempts),
		service.WithLogger(r.logger),
	)
}

func (r *runtime) close() {
	if closer, ok := r.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.logger.Warn("close session store", zap.Error(err))
		}
	}
	_ = r.logger.Sync()
}

func newRootCmd(info BuildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Cinema checkout from the terminal",
		Long:  `Pick seats, hold them, apply promotions or points and pay, all from the terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "config file (default is $XDG_CONFIG_HOME/"+appName+"/config.yaml)")

	rootCmd.AddCommand(
		newBookCmd(),
		newResumeCmd(),
		newSessionsCmd(),
		newHistoryCmd(),
		newVersionCmd(info),
	)
	return rootCmd
}

func Execute(info BuildInfo) {
	if err := newRootCmd(info).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
