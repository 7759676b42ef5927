package app

import (
	"net/http"

	"github.com/rs/zerolog"

	"certagent/internal/config"
	"certagent/internal/identity"
	"certagent/internal/surface"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home     string         // data directory, e.g. $HOME/.certagent
	Settings *config.Config // loaded configuration; defaults when nil
	HTTP     *http.Client   // optional; defaults to http.DefaultClient
	// Launch presents the identity provider URL. When nil the URL is only
	// logged.
	Launch surface.Launcher
	// Vault holds handle keys for the life of the process.
	Vault *identity.Vault
	// Getenv resolves the storage passphrase. Defaults to os.Getenv.
	Getenv func(string) string
	Logger zerolog.Logger
}
