package commands

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"certagent/internal/crypto"
	"certagent/internal/identity"
	"certagent/internal/surface"
)

// devProviderSeed derives the fixed development provider key.
const devProviderSeed = "certagent development identity provider"

func loginCmd() *cobra.Command {
	var (
		devProvider bool
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a delegation from the identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			launch := func(_ context.Context, providerURL, _ string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authenticate:\n  %s\n", providerURL)
				return nil
			}
			if devProvider {
				p, err := newDevProvider(settings.Identity.Provider)
				if err != nil {
					return err
				}
				launch = p.Launch
			}

			w, err := openWire(ctx, launch)
			if err != nil {
				return err
			}
			if err := w.Login(ctx); err != nil {
				return err
			}
			who, err := w.Whoami()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (expires %s)\n", who.Principal, who.Expiration)
			return nil
		},
	}
	cmd.Flags().BoolVar(&devProvider, "dev-provider", false, "approve the login with a built-in development provider")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the provider")
	return cmd
}

func newDevProvider(providerURL string) (*surface.DevProvider, error) {
	u, err := url.Parse(providerURL)
	if err != nil {
		return nil, err
	}
	seed := sha256.Sum256([]byte(devProviderSeed))
	priv, err := crypto.Ed25519FromSeed(seed[:])
	if err != nil {
		return nil, err
	}
	key, err := identity.NewEd25519Key(priv)
	if err != nil {
		return nil, err
	}
	return &surface.DevProvider{
		Signer:    key,
		PublicKey: key.PublicKey(),
		Origin:    u.Scheme + "://" + u.Host,
		Logger:    logger,
	}, nil
}
