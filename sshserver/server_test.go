package sshserver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/noamisr/maestro/core"
	"github.com/noamisr/maestro/internal/command"
	"github.com/noamisr/maestro/internal/eventbus"
	"github.com/noamisr/maestro/internal/mockengine"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/internal/skill"
)

type harness struct {
	addr  string
	store *core.Store
}

func newHarness(t *testing.T, authorizedKeys string) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := eventbus.NewEvents(nil)
	engine := mockengine.New(events, mockengine.WithSession(2, 2))
	store := core.NewStore()
	client := remote.NewClient(engine)
	router := core.NewRouter(store, core.WithResync(client.RequestFullState))
	if err := router.Start(ctx, events); err != nil {
		t.Fatalf("router start: %v", err)
	}
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("engine start: %v", err)
	}
	registry, err := skill.NewBuiltin(client)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := New(Config{
		HostKeyPath:        filepath.Join(t.TempDir(), "host_key"),
		AuthorizedKeysPath: authorizedKeys,
	}, store, command.NewHandler(registry, command.HandlerConfig{}))
	server.Listener = lis
	done := make(chan error, 1)
	go func() { done <- server.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
		_ = engine.Close(context.Background())
		router.Close()
	})
	waitFor(t, "sync", func() bool { return store.Snapshot().Synced })
	return &harness{addr: lis.Addr().String(), store: store}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

func dial(t *testing.T, addr string, signer ssh.Signer) (*ssh.Client, error) {
	t.Helper()
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "dev",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         2 * time.Second,
	})
	if err == nil {
		t.Cleanup(func() { _ = client.Close() })
	}
	return client, err
}

func runCommand(t *testing.T, client *ssh.Client, line string) (string, error) {
	t.Helper()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	defer sess.Close()
	out, err := sess.CombinedOutput(line)
	return string(out), err
}

func TestExecRunsSlashCommand(t *testing.T) {
	h := newHarness(t, "")
	client, err := dial(t, h.addr, newSigner(t))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	out, err := runCommand(t, client, "/tempo 100")
	if err != nil {
		t.Fatalf("run: %v (%s)", err, out)
	}
	if strings.TrimSpace(out) != "Tempo set to 100 BPM" {
		t.Fatalf("unexpected output %q", out)
	}
	waitFor(t, "tempo", func() bool { return h.store.Transport().Tempo == 100 })

	out, err = runCommand(t, client, "status")
	if err != nil || !strings.Contains(out, "100.0 BPM") || !strings.Contains(out, "engine online") {
		t.Fatalf("unexpected status %q err=%v", out, err)
	}
}

func TestExecFailureSetsExitStatus(t *testing.T) {
	h := newHarness(t, "")
	client, err := dial(t, h.addr, newSigner(t))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	out, err := runCommand(t, client, "/mute 99")
	var exitErr *ssh.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitStatus() != 1 {
		t.Fatalf("expected exit status 1, got %v (%s)", err, out)
	}
	if !strings.HasPrefix(out, "error: ") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestAuthorizedKeysRestrictLogin(t *testing.T) {
	allowed := newSigner(t)
	path := filepath.Join(t.TempDir(), "authorized_keys")
	body := "# maestro operators\n\n" + string(ssh.MarshalAuthorizedKey(allowed.PublicKey()))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write keys: %v", err)
	}
	h := newHarness(t, path)

	if _, err := dial(t, h.addr, newSigner(t)); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
	client, err := dial(t, h.addr, allowed)
	if err != nil {
		t.Fatalf("dial with authorized key: %v", err)
	}
	if out, err := runCommand(t, client, "/play"); err != nil || strings.TrimSpace(out) != "Playback started" {
		t.Fatalf("unexpected play %q err=%v", out, err)
	}
}

func TestShellConsoleReadsLines(t *testing.T) {
	h := newHarness(t, "")
	client, err := dial(t, h.addr, newSigner(t))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	defer sess.Close()
	stdin, err := sess.StdinPipe()
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout: %v", err)
	}
	if err := sess.Shell(); err != nil {
		t.Fatalf("shell: %v", err)
	}
	if _, err := io.WriteString(stdin, "tracks\r/solo 1\rquit\r"); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := io.ReadAll(stdout)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := sess.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	text := string(out)
	for _, want := range []string{"maestro console", "  0  ", "  1  ", "bye"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in console output:\n%s", want, text)
		}
	}
	waitFor(t, "solo", func() bool {
		track, ok := h.store.Track(1)
		return ok && track.Solo
	})
}

func TestLoadAuthorizedKeysRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authorized_keys")
	if err := os.WriteFile(path, []byte("not-a-key\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadAuthorizedKeys(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnsureHostKeyIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "host_key")
	first, err := EnsureHostKey(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := EnsureHostKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ssh.FingerprintSHA256(first.PublicKey()) != ssh.FingerprintSHA256(second.PublicKey()) {
		t.Fatalf("expected the stored host key to be reused")
	}
}
