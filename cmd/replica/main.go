package main

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"certagent/internal/crypto"
	"certagent/internal/domain"
	"certagent/internal/identity"
	"certagent/internal/replica"
)

func main() {
	var (
		listen  string
		delay   time.Duration
		verbose bool
	)
	cmd := &cobra.Command{
		Use:          "replica",
		Short:        "In-memory development replica",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level).With().Timestamp().Logger()
			return serve(cmd.Context(), listen, delay, log)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:4943", "listen address")
	cmd.Flags().DurationVar(&delay, "delay", time.Second, "time a call spends in each transient status")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every request")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serve(ctx context.Context, listen string, delay time.Duration, log zerolog.Logger) error {
	root, err := identity.GenerateKey(domain.KeyKindEd25519, nil)
	if err != nil {
		return err
	}
	rootKey := root.PublicKey()
	srv := &http.Server{
		Addr:              listen,
		Handler:           replica.NewServer(root, rootKey, replica.WithProcessingDelay(delay), replica.WithServerLogger(log)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info().
		Str("addr", listen).
		Str("root_key", hex.EncodeToString(rootKey)).
		Str("fingerprint", crypto.Fingerprint(rootKey).String()).
		Msg("replica listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
