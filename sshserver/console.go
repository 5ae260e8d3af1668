package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/term"

	"github.com/noamisr/maestro/core"
	"pkt.systems/pslog"
)

type reply struct {
	text string
	ok   bool
	quit bool
}

// dispatch runs one console line. Slash commands go to the command
// handler; status, tracks, help and quit are answered locally.
func dispatch(ctx context.Context, state core.StateReader, handler CommandHandler, p painter, line string) reply {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return reply{ok: true}
	case "quit", "exit", "/quit", "/exit":
		return reply{text: "bye", ok: true, quit: true}
	case "status":
		return reply{text: renderStatus(p, state.Snapshot()), ok: true}
	case "tracks":
		return reply{text: renderTracks(p, state.Tracks()), ok: true}
	case "help":
		line = "/help"
	}
	result, handled, err := handler.Handle(ctx, line)
	if err != nil {
		return reply{text: renderResult(p, false, err.Error())}
	}
	if !handled {
		return reply{text: renderResult(p, false, fmt.Sprintf("unknown input %q; commands start with /", line))}
	}
	return reply{text: renderResult(p, result.Success, result.Message), ok: result.Success}
}

type console struct {
	term    *term.Terminal
	state   core.StateReader
	handler CommandHandler
	paint   painter
}

func newConsole(rw io.ReadWriter, state core.StateReader, handler CommandHandler, prompt string, p painter) *console {
	return &console{
		term:    term.NewTerminal(rw, p.fg(p.theme.PromptFG, prompt)),
		state:   state,
		handler: handler,
		paint:   p,
	}
}

func (c *console) println(text string) {
	_, _ = c.term.Write([]byte(text + "\n"))
}

// Run reads lines until the client disconnects or quits.
func (c *console) Run(ctx context.Context, winCh <-chan gliderssh.Window) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.println(c.paint.bold("maestro") + " console. Type /help for commands, status, tracks or quit.")
	c.println(renderStatus(c.paint, c.state.Snapshot()))
	if winCh != nil {
		go c.resize(ctx, winCh)
	}
	go c.watchConnection(ctx)

	for {
		line, err := c.term.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		r := dispatch(ctx, c.state, c.handler, c.paint, line)
		if r.text != "" {
			c.println(r.text)
		}
		if r.quit {
			return nil
		}
	}
}

func (c *console) resize(ctx context.Context, winCh <-chan gliderssh.Window) {
	for {
		select {
		case <-ctx.Done():
			return
		case win, ok := <-winCh:
			if !ok {
				return
			}
			if err := c.term.SetSize(win.Width, win.Height); err != nil {
				pslog.Ctx(ctx).Debug("ssh resize failed", "err", err)
			}
		}
	}
}

// watchConnection prints the status line whenever the engine link or sync
// flag flips.
func (c *console) watchConnection(ctx context.Context) {
	changes, unsubscribe := c.state.Subscribe()
	defer unsubscribe()
	last := c.state.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			next := change.Snapshot
			if next.Connection == last.Connection && next.Synced == last.Synced {
				continue
			}
			last = next
			c.println(renderStatus(c.paint, next))
		}
	}
}
