package replica

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"

	"certagent/internal/clock"
	"certagent/internal/crypto"
	"certagent/internal/domain"
	"certagent/internal/identity"
)

const (
	// DefaultIngressExpiry is how far ahead requests expire.
	DefaultIngressExpiry = 4 * time.Minute

	contentTypeCBOR = "application/cbor"
	maxResponseSize = 4 << 20
)

// Status is the replica's self-description.
type Status struct {
	APIVersion  string `cbor:"ic_api_version"`
	ImplVersion string `cbor:"impl_version,omitempty"`
	RootKey     []byte `cbor:"root_key,omitempty"`
	Health      string `cbor:"replica_health_status,omitempty"`
}

type readStateResponse struct {
	Certificate []byte `cbor:"certificate"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.HTTP = h } }

// WithIdentity signs requests as id. The anonymous identity is the default.
func WithIdentity(id domain.Identity) Option { return func(c *Client) { c.identity = id } }

// WithRootKey pins the root key certificates are verified against.
func WithRootKey(der []byte) Option { return func(c *Client) { c.rootKey = der } }

// WithFetchRootKey allows the root key to be taken from the replica status
// when none is pinned. Only for development replicas.
func WithFetchRootKey(fetch bool) Option { return func(c *Client) { c.fetchRootKey = fetch } }

// WithIngressExpiry sets how far ahead requests expire.
func WithIngressExpiry(d time.Duration) Option { return func(c *Client) { c.expiry = d } }

// WithClock sets the clock used for ingress expiry.
func WithClock(cl clock.Clock) Option { return func(c *Client) { c.clock = cl } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// Client talks to a replica over HTTP.
type Client struct {
	Base string
	HTTP *http.Client

	identity     domain.Identity
	expiry       time.Duration
	fetchRootKey bool
	clock        clock.Clock
	log          zerolog.Logger

	mu      sync.Mutex
	rootKey []byte
}

// New returns a Client for the replica at base.
func New(base string, opts ...Option) *Client {
	c := &Client{Base: base, HTTP: http.DefaultClient, expiry: DefaultIngressExpiry, log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	if c.identity == nil {
		c.identity = identity.Anonymous{}
	}
	c.clock = clock.OrReal(c.clock)
	c.log = c.log.With().Str("component", "replica").Logger()
	return c
}

// PrepareReadState builds and signs a read_state request for paths.
func (c *Client) PrepareReadState(ctx context.Context, scope domain.Principal, paths []domain.Path) (*domain.ReadStateRequest, error) {
	content := c.content(RequestTypeReadState)
	content["paths"] = paths
	env, _, err := c.sign(ctx, content)
	if err != nil {
		return nil, err
	}
	return &domain.ReadStateRequest{Scope: scope, Paths: paths, Envelope: env}, nil
}

// ReadState sends req, preparing it first when it has no envelope.
func (c *Client) ReadState(ctx context.Context, req *domain.ReadStateRequest) (*domain.ReadStateResponse, error) {
	body := req.Envelope
	if body == nil {
		prepared, err := c.PrepareReadState(ctx, req.Scope, req.Paths)
		if err != nil {
			return nil, err
		}
		body = prepared.Envelope
	}
	rootKey, err := c.RootKey(ctx)
	if err != nil {
		return nil, err
	}
	var out readStateResponse
	if err := c.post(ctx, canisterPath(req.Scope, RequestTypeReadState), body, &out); err != nil {
		return nil, err
	}
	if len(out.Certificate) == 0 {
		return nil, fmt.Errorf("read_state: response carries no certificate")
	}
	return &domain.ReadStateResponse{Certificate: out.Certificate, RootKey: rootKey}, nil
}

// Call submits an update call and returns its request id. The reply is
// obtained by polling the request status.
func (c *Client) Call(ctx context.Context, scope domain.Principal, method string, arg []byte) (domain.RequestID, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return domain.RequestID{}, err
	}
	if arg == nil {
		arg = []byte{}
	}
	content := c.content(RequestTypeCall)
	content["canister_id"] = scope
	content["method_name"] = method
	content["arg"] = arg
	content["nonce"] = nonce
	env, id, err := c.sign(ctx, content)
	if err != nil {
		return domain.RequestID{}, err
	}
	if err := c.post(ctx, canisterPath(scope, RequestTypeCall), env, nil); err != nil {
		return domain.RequestID{}, err
	}
	c.log.Debug().Str("request_id", id.Hex()).Str("scope", scope.String()).Str("method", method).Msg("call submitted")
	return id, nil
}

// Status fetches the replica status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/api/v2/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RootKey returns the pinned root key, fetching it from the replica status
// when allowed.
func (c *Client) RootKey(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	key := c.rootKey
	c.mu.Unlock()
	if key != nil {
		return key, nil
	}
	if !c.fetchRootKey {
		return nil, fmt.Errorf("no root key configured")
	}
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	if len(st.RootKey) == 0 {
		return nil, fmt.Errorf("replica status carries no root key")
	}
	c.mu.Lock()
	c.rootKey = st.RootKey
	c.mu.Unlock()
	c.log.Warn().Str("fingerprint", crypto.Fingerprint(st.RootKey).String()).Msg("using root key fetched from replica")
	return st.RootKey, nil
}

func (c *Client) content(requestType string) map[string]any {
	return map[string]any{
		"request_type":   requestType,
		"sender":         c.identity.Principal(),
		"ingress_expiry": uint64(c.clock.Now().Add(c.expiry).UnixNano()),
	}
}

// sign wraps content in an envelope signed by the client's identity.
func (c *Client) sign(ctx context.Context, content map[string]any) ([]byte, domain.RequestID, error) {
	id, err := crypto.RequestID(content)
	if err != nil {
		return nil, id, err
	}
	env := &Envelope{Content: content}
	if !c.identity.Principal().IsAnonymous() {
		sig, err := c.identity.Sign(ctx, crypto.RequestSignable(id))
		if err != nil {
			return nil, id, fmt.Errorf("sign request: %w", err)
		}
		env.SenderPubkey = c.identity.PublicKey()
		env.SenderSig = sig
		env.SenderDelegation = toWire(c.identity.Delegations())
	}
	b, err := env.Encode()
	return b, id, err
}

func canisterPath(scope domain.Principal, endpoint string) string {
	return "/api/v2/canister/" + scope.String() + "/" + endpoint
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentTypeCBOR)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("replica post %s: %s%s", path, resp.Status, errorBody(resp.Body))
	}
	return decode(resp.Body, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("replica get %s: %s%s", path, resp.Status, errorBody(resp.Body))
	}
	return decode(resp.Body, out)
}

func decode(r io.Reader, out any) error {
	if out == nil {
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(r, maxResponseSize))
	if err != nil {
		return err
	}
	if err := cbor.Unmarshal(bytes.TrimPrefix(b, selfDescribeTag), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	if len(bytes.TrimSpace(b)) == 0 {
		return ""
	}
	return ": " + string(bytes.TrimSpace(b))
}

var (
	_ domain.ReplicaClient     = (*Client)(nil)
	_ domain.ReadStatePreparer = (*Client)(nil)
)
