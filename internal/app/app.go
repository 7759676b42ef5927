package app

import (
	"context"
	"fmt"
	"time"

	"certagent/internal/crypto"
	"certagent/internal/domain"
	"certagent/internal/polling"
	"certagent/internal/session"
)

// Whoami describes the current session.
type Whoami struct {
	State         session.State
	Principal     domain.Principal
	Authenticated bool
	Expiration    string
	SessionKey    domain.Fingerprint
}

// Whoami reports the session state and effective principal.
func (w *Wire) Whoami() (Whoami, error) {
	out := Whoami{State: w.Session.State(), Authenticated: w.Session.IsAuthenticated()}
	if k := w.Session.Key(); k != nil {
		out.SessionKey = crypto.Fingerprint(k.PublicKey())
	}
	if c := w.Session.Chain(); c != nil {
		out.Expiration = c.Expiration().UTC().Format(time.RFC3339)
	}
	id, err := w.Session.Identity()
	if err != nil {
		return out, err
	}
	out.Principal = id.Principal()
	return out, nil
}

// Login runs a handshake with the configured identity provider.
func (w *Wire) Login(ctx context.Context) error {
	opts, err := w.LoginOptions()
	if err != nil {
		return err
	}
	return w.Session.Login(ctx, opts)
}

func (w *Wire) resolveScope(scope domain.Principal) (domain.Principal, error) {
	if scope != nil {
		return scope, nil
	}
	if w.scope == nil {
		return nil, fmt.Errorf("no scope given and replica.scope is not configured")
	}
	return w.scope, nil
}

// Poll waits for the outcome of a previously submitted call.
func (w *Wire) Poll(ctx context.Context, scope domain.Principal, id domain.RequestID) (*polling.Result, error) {
	scope, err := w.resolveScope(scope)
	if err != nil {
		return nil, err
	}
	client, err := w.Replica()
	if err != nil {
		return nil, err
	}
	return polling.New(client, polling.WithLogger(w.log)).Poll(ctx, scope, id, w.Strategy())
}

// PollAll waits for several calls concurrently.
func (w *Wire) PollAll(ctx context.Context, scope domain.Principal, ids []domain.RequestID, limit int) ([]polling.Outcome, error) {
	scope, err := w.resolveScope(scope)
	if err != nil {
		return nil, err
	}
	client, err := w.Replica()
	if err != nil {
		return nil, err
	}
	return polling.New(client, polling.WithLogger(w.log)).PollAll(ctx, scope, ids, w.Strategy, limit), nil
}

// Call submits method with arg and polls until it completes.
func (w *Wire) Call(ctx context.Context, scope domain.Principal, method string, arg []byte) (domain.RequestID, *polling.Result, error) {
	scope, err := w.resolveScope(scope)
	if err != nil {
		return domain.RequestID{}, nil, err
	}
	client, err := w.Replica()
	if err != nil {
		return domain.RequestID{}, nil, err
	}
	id, err := client.Call(ctx, scope, method, arg)
	if err != nil {
		return id, nil, err
	}
	w.Session.Touch()
	res, err := polling.New(client, polling.WithLogger(w.log)).Poll(ctx, scope, id, w.Strategy())
	return id, res, err
}
