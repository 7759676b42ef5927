package surface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"certagent/internal/clock"
	"certagent/internal/delegation"
	"certagent/internal/domain"
)

const (
	devDefaultTTL = 30 * time.Minute
	devMaxTTL     = 30 * 24 * time.Hour
)

// DevProvider approves every authorization request by delegating from its
// own key to the requesting session key.
type DevProvider struct {
	Signer    domain.Signer
	PublicKey []byte
	// Origin is sent with every message; it must match the provider URL.
	Origin string
	Client *http.Client
	Clock  clock.Clock
	Logger zerolog.Logger
}

// Launch starts the provider side of the handshake in the background.
func (p *DevProvider) Launch(ctx context.Context, providerURL, _ string) error {
	u, err := url.Parse(providerURL)
	if err != nil {
		return err
	}
	callback := u.Query().Get(callbackParameter)
	if callback == "" {
		return fmt.Errorf("provider url has no %s parameter", callbackParameter)
	}
	go func() {
		if err := p.Run(ctx, callback); err != nil {
			p.Logger.Warn().Err(err).Msg("dev provider stopped")
		}
	}()
	return nil
}

// Run performs the provider side of one handshake against callback.
func (p *DevProvider) Run(ctx context.Context, callback string) error {
	if err := p.send(ctx, callback, domain.MessageHeader{Kind: domain.KindAuthorizeReady}); err != nil {
		return err
	}
	for {
		msg, closed, err := p.poll(ctx, callback)
		if err != nil || closed {
			return err
		}
		if msg == nil || msg.TargetOrigin != p.Origin {
			continue
		}
		var hdr domain.MessageHeader
		if err := json.Unmarshal(msg.Data, &hdr); err != nil || hdr.Kind != domain.KindAuthorizeClient {
			continue
		}
		var req domain.AuthorizeClientRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return p.send(ctx, callback, domain.AuthorizeFailure{Kind: domain.KindAuthorizeFailure, Text: err.Error()})
		}
		reply, err := p.authorize(ctx, req)
		if err != nil {
			return p.send(ctx, callback, domain.AuthorizeFailure{Kind: domain.KindAuthorizeFailure, Text: err.Error()})
		}
		return p.send(ctx, callback, reply)
	}
}

func (p *DevProvider) authorize(ctx context.Context, req domain.AuthorizeClientRequest) (domain.AuthorizeSuccess, error) {
	ttl := time.Duration(req.MaxTimeToLive)
	if ttl <= 0 {
		ttl = devDefaultTTL
	}
	if ttl > devMaxTTL {
		ttl = devMaxTTL
	}
	exp := clock.OrReal(p.Clock).Now().Add(ttl)
	var targets []domain.Principal
	if len(req.ScopeRestriction) > 0 {
		targets = req.ScopeRestriction
	}
	chain, err := delegation.Create(ctx, p.Signer, p.PublicKey, req.SessionPublicKey, exp, targets, nil)
	if err != nil {
		return domain.AuthorizeSuccess{}, err
	}
	p.Logger.Info().Time("expiration", exp).Msg("dev provider approved session")
	return domain.AuthorizeSuccess{
		Kind:          domain.KindAuthorizeSuccess,
		Delegations:   delegation.ToWire(chain),
		UserPublicKey: p.PublicKey,
		AuthnMethod:   "dev",
	}, nil
}

func (p *DevProvider) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *DevProvider) send(ctx context.Context, callback string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callback+"/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", p.Origin)
	resp, err := p.client().Do(req)
	if err != nil {
		return fmt.Errorf("provider post %s: %w", callback, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("provider post %s: %s", callback, resp.Status)
	}
	return nil
}

func (p *DevProvider) poll(ctx context.Context, callback string) (*Outgoing, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callback+"/outbox", nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Origin", p.Origin)
	resp, err := p.client().Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("provider poll %s: %w", callback, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, false, nil
	case http.StatusGone:
		return nil, true, nil
	case http.StatusOK:
		var m Outgoing
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxMessageBytes)).Decode(&m); err != nil {
			return nil, false, fmt.Errorf("decode outbox: %w", err)
		}
		return &m, false, nil
	default:
		return nil, false, fmt.Errorf("provider poll %s: %s", callback, resp.Status)
	}
}
