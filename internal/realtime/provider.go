package realtime

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/Cross4solution/MedGama-sub003/internal/kv"
)

// TokenKey is where the signed-in user's bearer token lives in the kv store.
const TokenKey = "medgama.token"

// Factory opens a connector for cfg. Tests substitute their own.
type Factory func(ctx context.Context, cfg Config, auth *Authorizer) (Connector, error)

// DefaultFactory dials the configured transport with DialPusher.
func DefaultFactory(ctx context.Context, cfg Config, auth *Authorizer) (Connector, error) {
	url, err := cfg.SocketURL()
	if err != nil {
		return nil, err
	}
	return DialPusher(ctx, url, auth)
}

// Provider owns the single real-time connector of the process. The connector
// is built on first use; every later access refreshes its bearer token from
// the kv store so a re-login takes effect without reconnecting.
type Provider struct {
	cfg     Config
	store   kv.Store
	client  *http.Client
	Factory Factory

	mu   sync.Mutex
	conn Connector
}

// NewProvider builds a Provider. client is used for channel authorization.
func NewProvider(cfg Config, store kv.Store, client *http.Client) *Provider {
	return &Provider{cfg: cfg, store: store, client: client, Factory: DefaultFactory}
}

// Available reports whether any transport is configured.
func (p *Provider) Available() bool {
	return p.cfg.Protocol() != ProtocolNone
}

// Connector returns the memoized connector, rebuilding it once the previous
// one has dropped. It returns a nil connector and a
// nil error when no transport is configured; callers then fall back to polling.
func (p *Provider) Connector(ctx context.Context) (Connector, error) {
	token := kv.GetString(ctx, p.store, TokenKey)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && Dropped(p.conn) {
		log.Printf("realtime connector dropped, reconnecting")
		_ = p.conn.Close()
		p.conn = nil
	}
	if p.conn != nil {
		p.conn.SetToken(token)
		return p.conn, nil
	}

	protocol := p.cfg.Protocol()
	if protocol == ProtocolNone {
		return nil, nil
	}

	auth := NewAuthorizer(AuthEndpoint(p.cfg.APIBaseURL), p.client)
	auth.SetToken(token)
	conn, err := p.Factory(ctx, p.cfg, auth)
	if err != nil {
		return nil, err
	}
	log.Printf("realtime connector ready protocol=%s auth_endpoint=%s", protocol, auth.Endpoint())
	p.conn = conn
	return conn, nil
}

// Disconnect closes and forgets the connector. The next access reconnects.
func (p *Provider) Disconnect() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
