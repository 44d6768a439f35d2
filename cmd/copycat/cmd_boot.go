package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/bridge"
	"github.com/copycat-emu/copycat/internal/engine"
	"github.com/copycat-emu/copycat/internal/notify"
	"github.com/copycat-emu/copycat/internal/settings"
	"github.com/copycat-emu/copycat/internal/terminal"
)

func newBootCmd(stdout, stderr io.Writer) *cobra.Command {
	var timeout time.Duration
	var ascii bool
	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot the computer and show its terminal",
		Long: `Load the engine runtime, attach the computer and draw its terminal on
every flush until interrupted or --timeout expires. When the runtime
cannot be loaded the error screen is drawn and the command fails.`,
		Example: `  copycat boot
  copycat boot --timeout 10s --ascii`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			profile := termenv.NewOutput(stdout).EnvColorProfile()
			draw := func(s terminal.Snapshot) {
				out := terminal.Plain(s)
				if !ascii {
					out = terminal.Render(s, terminal.RenderOptions{Profile: profile})
				}
				fmt.Fprintln(stdout, out) //nolint:errcheck // best-effort stdout
			}

			return withWorkspace(ctx, stderr, "boot", func(w *workspace) error {
				registry := engine.Default()
				registry.SetLogger(w.log)
				s := settings.Open(w.settingsStore(), settings.WithLogger(w.log))

				c := bridge.New(w.backend(w.id),
					bridge.WithID(w.id),
					bridge.WithRegistry(registry),
					bridge.WithLogger(w.log),
					bridge.WithRecorder(w.rec),
				)
				defer c.Dispose()

				term := c.Terminal()
				flushed := notify.Func(func() { draw(term.Snapshot()) })
				term.Changes().Attach(flushed)
				defer term.Changes().Detach(flushed)

				err := c.Start(ctx, s.Factory(), bridge.StartOptions{
					Width:  w.cfg.Computer.Width,
					Height: w.cfg.Computer.Height,
					Label:  w.cfg.Computer.Label,
				})
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				if err != nil {
					return err
				}
				c.TurnOn()
				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop after this long (0 = until interrupted)")
	cmd.Flags().BoolVar(&ascii, "ascii", false, "draw plain text without colours")
	return cmd
}
