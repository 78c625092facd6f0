package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/srg/powerup/internal/groutine"
	"golang.org/x/term"
)

// ErrNotTerminal is returned by Run when input is not a terminal.
var ErrNotTerminal = errors.New("drive needs an interactive terminal")

const stopTimeout = 2 * time.Second

// Help is printed before driving starts.
const Help = "↑/w faster  ↓/s slower  ←/a left  →/d right  c center  space stop  q quit"

// Run puts in into raw mode and drives c from the keyboard until q, Ctrl+C
// or ctx is done. The motor is stopped on the way out.
func Run(ctx context.Context, in *os.File, out io.Writer, c *Controller, tick time.Duration) error {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return ErrNotTerminal
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, old) }()

	keys := make(chan []byte)
	groutine.Go(ctx, "drive-keyboard", func(ctx context.Context) {
		readKeys(ctx, in, keys)
	})

	fmt.Fprintf(out, "%s\r\n", Help)
	err = Loop(ctx, keys, c, func(s State) {
		fmt.Fprintf(out, "\rspeed %3d  rudder %4d ", s.Speed, s.Angle)
	}, tick)
	fmt.Fprint(out, "\r\n")
	return err
}

func readKeys(ctx context.Context, in io.Reader, keys chan<- []byte) {
	defer close(keys)
	buf := make([]byte, 32)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			select {
			case keys <- append([]byte(nil), buf[:n]...):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Loop feeds decoded keys to c, flushes throttled changes every tick and
// calls render after each change. Input closing ends the loop like q.
func Loop(ctx context.Context, keys <-chan []byte, c *Controller, render func(State), tick time.Duration) (err error) {
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if serr := c.Stop(stopCtx); serr != nil && err == nil {
			err = fmt.Errorf("failed to stop motor: %w", serr)
		}
		render(c.State())
	}()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var dec KeyDecoder
	render(c.State())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				return err
			}
		case buf, ok := <-keys:
			if !ok {
				return nil
			}
			for _, k := range dec.Decode(buf) {
				quit, err := c.Handle(ctx, k)
				if err != nil {
					return err
				}
				if quit {
					return nil
				}
			}
			render(c.State())
		}
	}
}
