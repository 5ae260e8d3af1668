package sshserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"github.com/noamisr/maestro/core"
	"github.com/noamisr/maestro/internal/logx"
	"github.com/noamisr/maestro/internal/skill"
	"pkt.systems/pslog"
)

// CommandHandler routes slash commands.
type CommandHandler interface {
	Handle(ctx context.Context, input string) (skill.Result, bool, error)
}

// Server exposes the control surface as an SSH console. A session with a
// command runs that single line and exits with status 0 on success.
type Server struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	Listener           net.Listener
	State              core.StateReader
	Handler            CommandHandler
	Prompt             string
	Theme              string
	logger             pslog.Logger
	authorized         []ssh.PublicKey
}

// New builds a server from cfg.
func New(cfg Config, state core.StateReader, handler CommandHandler) *Server {
	return &Server{
		Addr:               cfg.Addr,
		HostKeyPath:        cfg.HostKeyPath,
		AuthorizedKeysPath: cfg.AuthorizedKeysPath,
		State:              state,
		Handler:            handler,
		Prompt:             cfg.Prompt,
		Theme:              cfg.Theme,
	}
}

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Prompt == "" {
		s.Prompt = "maestro> "
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.State == nil || s.Handler == nil {
		return errors.New("ssh console needs state and a command handler")
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(s.AuthorizedKeysPath) != "" {
		keys, err := LoadAuthorizedKeys(s.AuthorizedKeysPath)
		if err != nil {
			return err
		}
		s.authorized = keys
	} else {
		s.logger.Warn("ssh authorized keys not configured; only loopback clients are admitted")
	}

	server := &gliderssh.Server{
		Addr:             s.Addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", ssh.FingerprintSHA256(key))
	if len(s.authorized) == 0 {
		if !isLoopback(ctx.RemoteAddr()) {
			log.Warn("ssh pubkey rejected", "reason", "no authorized keys and remote is not loopback")
			return false
		}
		log.Debug("ssh pubkey accepted", "reason", "loopback")
		return true
	}
	for _, allowed := range s.authorized {
		if gliderssh.KeysEqual(key, allowed) {
			log.Info("ssh pubkey accepted")
			return true
		}
	}
	log.Warn("ssh pubkey rejected", "reason", "no matching key")
	return false
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func isLoopback(addr net.Addr) bool {
	if addr == nil {
		return false
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger.With("user", sess.User(), "remote", sess.RemoteAddr().String())
	if id := sess.Context().SessionID(); id != "" {
		log = log.With("ssh_session", id)
	}
	ctx := logx.ContextWithOriginLogger(pslog.ContextWithLogger(sess.Context(), log), "ssh")

	pty, winCh, isPty := sess.Pty()
	p := painter{theme: themeForName(s.Theme), color: isPty}

	if raw := strings.TrimSpace(sess.RawCommand()); raw != "" {
		r := dispatch(ctx, s.State, s.Handler, p, raw)
		if r.text != "" {
			_, _ = io.WriteString(sess, r.text+"\n")
		}
		status := 0
		if !r.ok {
			status = 1
		}
		log.Info("ssh command finished", "ok", r.ok)
		_ = sess.Exit(status)
		return
	}

	log.Info("ssh session opened", "pty", isPty, "term", pty.Term)
	ui := newConsole(sess, s.State, s.Handler, s.Prompt, p)
	if isPty {
		_ = ui.term.SetSize(pty.Window.Width, pty.Window.Height)
	} else {
		winCh = nil
	}
	if err := ui.Run(ctx, winCh); err != nil {
		log.Debug("ssh session read ended", "err", err)
	}
	log.Info("ssh session closed")
}
