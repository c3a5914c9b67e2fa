package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/MrWong99/fortuna/internal/app"
	"github.com/MrWong99/fortuna/internal/session"
	"github.com/MrWong99/fortuna/pkg/provider/live"
)

func (c *cli) liveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Talk to the master over the microphone and speaker",
		Long: `Opens a live voice session with the master. Speak into the microphone;
the master answers through the speaker and can be interrupted mid-sentence.
Press Ctrl+C to end the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.live(cmd.Context())
		},
	}
}

func (c *cli) live(ctx context.Context) error {
	a, err := c.build(nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Shutdown(context.Background()) }()

	sm := a.Sessions()
	if sm == nil {
		return errors.New("no live provider configured")
	}

	tp := &transcriptPrinter{w: c.out}
	ctrl, err := sm.Start(ctx, app.Hooks{
		OnStateChange: tp.state,
		OnMessage:     tp.message,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "The master is listening. Press Ctrl+C to leave.")

	select {
	case <-ctx.Done():
		ctrl.Stop()
		<-ctrl.Done()
	case <-ctrl.Done():
	}
	tp.flush()

	st := ctrl.Stats()
	fmt.Fprintf(c.out, "Session over: %d frames sent, %d dropped, %d replies, %d interruptions.\n",
		st.Capture.Sent, st.Capture.Dropped, st.Units, st.Interruptions)

	if err := ctrl.Err(); err != nil && !errors.Is(err, session.ErrStopped) {
		return err
	}
	return nil
}

// transcriptPrinter writes live session transcripts as they arrive. The
// partial transcripts of one turn are joined into a single line.
type transcriptPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	speaker string
	line    strings.Builder
}

func (p *transcriptPrinter) state(from, to session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch to {
	case session.StateInterrupted:
		p.flushLocked()
		fmt.Fprintln(p.w, "  (interrupted)")
	case session.StateError:
		p.flushLocked()
		fmt.Fprintf(p.w, "  (session %s -> %s)\n", from, to)
	}
}

func (p *transcriptPrinter) message(ev live.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.InputTranscript != "" {
		p.appendLocked("You", ev.InputTranscript)
	}
	if ev.OutputTranscript != "" {
		p.appendLocked("Master", ev.OutputTranscript)
	} else if ev.Text != "" {
		p.appendLocked("Master", ev.Text)
	}
	if ev.TurnComplete {
		p.flushLocked()
	}
}

func (p *transcriptPrinter) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked()
}

func (p *transcriptPrinter) appendLocked(who, text string) {
	if p.speaker != who {
		p.flushLocked()
		p.speaker = who
	}
	p.line.WriteString(text)
}

func (p *transcriptPrinter) flushLocked() {
	if p.line.Len() > 0 {
		fmt.Fprintf(p.w, "%s: %s\n", p.speaker, strings.TrimSpace(p.line.String()))
	}
	p.line.Reset()
	p.speaker = ""
}
