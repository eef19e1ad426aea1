package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cross4solution/MedGama-sub003/internal/kv"
)

func TestProtocolPrecedence(t *testing.T) {
	broker := BrokerConfig{Key: "k", Host: "reverb.local", Port: "8080", Scheme: "https"}
	cloud := CloudConfig{Key: "pk", Cluster: "eu"}

	assert.Equal(t, ProtocolBroker, Config{Broker: broker, Cloud: cloud}.Protocol())
	assert.Equal(t, ProtocolCloud, Config{Cloud: cloud}.Protocol())
	assert.Equal(t, ProtocolCloud, Config{Broker: BrokerConfig{Key: "k", Host: "h"}, Cloud: cloud}.Protocol())
	assert.Equal(t, ProtocolNone, Config{}.Protocol())
	assert.Equal(t, ProtocolNone, Config{Cloud: CloudConfig{Key: "pk"}}.Protocol())

	u, err := Config{Broker: broker, Cloud: cloud}.SocketURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://reverb.local:8080/app/k?"))

	u, err = Config{Cloud: cloud}.SocketURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://ws-eu.pusher.com/app/pk?"))

	_, err = Config{}.SocketURL()
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAuthEndpoint(t *testing.T) {
	cases := map[string]string{
		"https://medgama.test/api":  "https://medgama.test/broadcasting/auth",
		"https://medgama.test/api/": "https://medgama.test/broadcasting/auth",
		"https://medgama.test":      "https://medgama.test/broadcasting/auth",
		"https://api.medgama.test/": "https://api.medgama.test/broadcasting/auth",
	}
	for in, want := range cases {
		assert.Equal(t, want, AuthEndpoint(in), in)
	}
}

func TestProviderNilWithoutTransport(t *testing.T) {
	p := NewProvider(Config{APIBaseURL: "http://x/api"}, kv.NewMemory(), nil)

	conn, err := p.Connector(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, conn)
	assert.False(t, p.Available())
	assert.NoError(t, p.Disconnect())
}

type fakeConnector struct {
	mu     sync.Mutex
	tokens []string
	closed bool
}

func (f *fakeConnector) Subscribe(context.Context, string, Handler) error { return nil }
func (f *fakeConnector) Unsubscribe(string) error                        { return nil }
func (f *fakeConnector) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
}
func (f *fakeConnector) Close() error {
	f.closed = true
	return nil
}

func TestProviderMemoizesAndRefreshesToken(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, TokenKey, []byte("t1")))

	builds := 0
	var built []*fakeConnector
	var authTokens []string
	p := NewProvider(Config{Cloud: CloudConfig{Key: "pk", Cluster: "eu"}, APIBaseURL: "https://medgama.test/api"}, store, nil)
	p.Factory = func(_ context.Context, _ Config, auth *Authorizer) (Connector, error) {
		builds++
		authTokens = append(authTokens, auth.Token())
		assert.Equal(t, "https://medgama.test/broadcasting/auth", auth.Endpoint())
		fc := &fakeConnector{}
		built = append(built, fc)
		return fc, nil
	}

	first, err := p.Connector(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, TokenKey, []byte("t2")))
	second, err := p.Connector(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
	assert.Equal(t, []string{"t1"}, authTokens)
	assert.Equal(t, []string{"t2"}, built[0].tokens)

	require.NoError(t, p.Disconnect())
	assert.True(t, built[0].closed)

	third, err := p.Connector(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, builds)
	assert.Equal(t, []string{"t1", "t2"}, authTokens)
}

type droppableConnector struct {
	fakeConnector
	done chan struct{}
}

func (d *droppableConnector) Done() <-chan struct{} { return d.done }

func TestProviderRebuildsDroppedConnector(t *testing.T) {
	ctx := context.Background()
	var built []*droppableConnector
	p := NewProvider(Config{Cloud: CloudConfig{Key: "pk", Cluster: "eu"}, APIBaseURL: "https://medgama.test/api"}, kv.NewMemory(), nil)
	p.Factory = func(context.Context, Config, *Authorizer) (Connector, error) {
		dc := &droppableConnector{done: make(chan struct{})}
		built = append(built, dc)
		return dc, nil
	}

	first, err := p.Connector(ctx)
	require.NoError(t, err)
	assert.False(t, Dropped(first))
	again, err := p.Connector(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	close(built[0].done)
	assert.True(t, Dropped(first))

	fresh, err := p.Connector(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Len(t, built, 2)
	assert.True(t, built[0].closed)
	assert.False(t, Dropped(fresh))
	assert.False(t, Dropped(&fakeConnector{}))
}

func TestAuthorizerPostsFormWithBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/broadcasting/auth", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "1.2", r.PostForm.Get("socket_id"))
		assert.Equal(t, "private-chat.7", r.PostForm.Get("channel_name"))
		_ = json.NewEncoder(w).Encode(AuthResponse{Auth: "pk:sig"})
	}))
	defer srv.Close()

	a := NewAuthorizer(AuthEndpoint(srv.URL+"/api"), srv.Client())
	a.SetToken("secret")
	resp, err := a.Authorize(context.Background(), "1.2", "private-chat.7")
	require.NoError(t, err)
	assert.Equal(t, "pk:sig", resp.Auth)
}

func TestAuthorizerRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewAuthorizer(srv.URL, srv.Client()).Authorize(context.Background(), "1.2", "private-chat.7")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// fakePusher is a minimal Pusher server: it greets, answers subscribe and
// records client frames.
type fakePusher struct {
	t        *testing.T
	mu       sync.Mutex
	received []frame
	writeMu  sync.Mutex
	conn     *websocket.Conn
	ready    chan struct{}
}

func (fp *fakePusher) write(f frame) error {
	fp.writeMu.Lock()
	defer fp.writeMu.Unlock()
	return fp.conn.WriteJSON(f)
}

func newFakePusher(t *testing.T) (*fakePusher, *httptest.Server) {
	fp := &fakePusher{t: t, ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/app/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fp.conn = conn
		established, _ := json.Marshal(`{"socket_id":"123.456","activity_timeout":30}`)
		_ = fp.write(frame{Event: "pusher:connection_established", Data: established})
		close(fp.ready)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			fp.mu.Lock()
			fp.received = append(fp.received, f)
			fp.mu.Unlock()
			if f.Event == "pusher:subscribe" {
				var d subscribeData
				_ = json.Unmarshal(f.Data, &d)
				_ = fp.write(frame{Event: "pusher_internal:subscription_succeeded", Channel: d.Channel, Data: json.RawMessage(`"{}"`)})
			}
		}
	})
	mux.HandleFunc("/broadcasting/auth", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AuthResponse{Auth: "pk:signed"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fp, srv
}

func (fp *fakePusher) events() []string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	names := make([]string, 0, len(fp.received))
	for _, f := range fp.received {
		names = append(names, f.Event)
	}
	return names
}

func (fp *fakePusher) frame(event string) (frame, bool) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	for _, f := range fp.received {
		if f.Event == event {
			return f, true
		}
	}
	return frame{}, false
}

func TestPusherClientSubscribePingAndEvents(t *testing.T) {
	fp, srv := newFakePusher(t)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cfg := Config{
		Broker:     BrokerConfig{Key: "pk", Host: u.Hostname(), Port: u.Port(), Scheme: "http"},
		APIBaseURL: srv.URL + "/api",
	}
	store := kv.NewMemory()
	require.NoError(t, store.Set(context.Background(), TokenKey, []byte("tok")))
	p := NewProvider(cfg, store, srv.Client())
	defer p.Disconnect()

	conn, err := p.Connector(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)
	<-fp.ready
	assert.Equal(t, "123.456", conn.(*PusherClient).SocketID())

	got := make(chan string, 1)
	require.NoError(t, conn.Subscribe(context.Background(), "private-chat.7", func(event string, data []byte) {
		got <- event + " " + string(data)
	}))
	require.Eventually(t, func() bool {
		_, ok := fp.frame("pusher:subscribe")
		return ok
	}, time.Second, 10*time.Millisecond)
	sub, _ := fp.frame("pusher:subscribe")
	var d subscribeData
	require.NoError(t, json.Unmarshal(sub.Data, &d))
	assert.Equal(t, "private-chat.7", d.Channel)
	assert.Equal(t, "pk:signed", d.Auth)

	require.NoError(t, fp.write(frame{Event: "pusher:ping", Data: json.RawMessage(`{}`)}))
	require.Eventually(t, func() bool {
		return contains(fp.events(), "pusher:pong")
	}, time.Second, 10*time.Millisecond)

	payload, _ := json.Marshal(`{"message_id":"m1","status":"read"}`)
	require.NoError(t, fp.write(frame{Event: "message.read", Channel: "private-chat.7", Data: payload}))
	select {
	case msg := <-got:
		assert.Equal(t, `message.read {"message_id":"m1","status":"read"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDialPusherRejectsBadHandshake(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(frame{Event: "pusher:error", Data: json.RawMessage(`{"code":4001,"message":"App key not in this cluster"}`)})
	}))
	defer srv.Close()

	_, err := DialPusher(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/app/bad", nil)
	assert.ErrorContains(t, err, "pusher:error")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
