package integration_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/noamisr/maestro"
	"github.com/noamisr/maestro/httpapi"
	"github.com/noamisr/maestro/internal/appconfig"
	"github.com/noamisr/maestro/internal/bridgews"
	"github.com/noamisr/maestro/internal/eventbus"
	"github.com/noamisr/maestro/internal/mockengine"
	"github.com/noamisr/maestro/schema"
)

// bridgeHost serves a mock engine over the websocket bridge.
type bridgeHost struct {
	engine *mockengine.Engine
	lis    *trackingListener
	url    string
}

func newBridgeHost(t *testing.T) *bridgeHost {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := eventbus.NewEvents(nil)
	engine := mockengine.New(events, mockengine.WithSession(3, 4))
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("engine start: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/bridge", bridgews.NewHandler(engine, events))
	lis := &trackingListener{Listener: listen(t)}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(func() {
		_ = server.Close()
		lis.kill()
		_ = engine.Close(context.Background())
		cancel()
	})
	return &bridgeHost{
		engine: engine,
		lis:    lis,
		url:    "ws://" + lis.Addr().String() + "/bridge",
	}
}

// kill drops the listener and every accepted connection, including
// upgraded websocket connections the HTTP server no longer tracks.
func (h *bridgeHost) kill() {
	h.lis.kill()
}

type trackingListener struct {
	net.Listener
	mu    sync.Mutex
	conns []net.Conn
}

func (l *trackingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		l.mu.Lock()
		l.conns = append(l.conns, conn)
		l.mu.Unlock()
	}
	return conn, err
}

func (l *trackingListener) kill() {
	_ = l.Listener.Close()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, conn := range l.conns {
		_ = conn.Close()
	}
	l.conns = nil
}

// stack is a runtime reached over the bridge with HTTP and SSH enabled.
type stack struct {
	rt       *maestro.Runtime
	httpBase string
	sshAddr  string
}

func newStack(t *testing.T, host *bridgeHost) *stack {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Engine.Kind = string(schema.EngineBridge)
	cfg.Bridge.Transport = appconfig.BridgeWebSocket
	cfg.Bridge.URL = host.url
	cfg.Bridge.ReconnectSeconds = 1
	cfg.Sidecar.Enabled = false
	cfg.SSH.HostKeyPath = filepath.Join(t.TempDir(), "ssh_host_key")

	httpLis := listen(t)
	sshLis := listen(t)
	rt, err := maestro.New(cfg,
		maestro.WithListener(httpLis),
		maestro.WithSSHListener(sshLis),
		maestro.WithoutTelemetry(),
	)
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Stop(ctx)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.WaitSynced(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return &stack{
		rt:       rt,
		httpBase: "http://" + httpLis.Addr().String(),
		sshAddr:  sshLis.Addr().String(),
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return lis
}

func (s *stack) state(t *testing.T) httpapi.StatePayload {
	t.Helper()
	resp, err := http.Get(s.httpBase + "/api/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	defer resp.Body.Close()
	var payload httpapi.StatePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return payload
}

func (s *stack) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(s.httpBase+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (s *stack) ssh(t *testing.T, line string) (string, error) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	client, err := ssh.Dial("tcp", s.sshAddr, &ssh.ClientConfig{
		User:            "it",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         2 * time.Second,
	})
	if err != nil {
		t.Fatalf("ssh dial: %v", err)
	}
	defer client.Close()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("ssh session: %v", err)
	}
	defer sess.Close()
	out, err := sess.CombinedOutput(line)
	return string(out), err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
