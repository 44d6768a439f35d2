package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/copycat-emu/copycat/internal/events"
)

func newEventsCmd(stdout, stderr io.Writer) *cobra.Command {
	var typeFilter string
	var actorFilter string
	var sinceFlag string
	var watchFlag bool
	var timeoutFlag string
	var afterFlag uint64

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the event log",
		Long: `Show the event log as a table. With --watch, block until events newer
than --after (or the current head) arrive and print them as JSON lines.
Empty output from --watch means the timeout expired.`,
		Example: `  copycat events
  copycat events --type file.uploaded --since 1h
  copycat events --watch --timeout 5m`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return fail(stderr, "events", err)
			}
			path := cfg.Events.Path
			if path == "" {
				return fail(stderr, "events", errors.New("event log disabled (events.path is empty)"))
			}
			filter := events.Filter{Type: typeFilter, Actor: actorFilter}
			if watchFlag {
				timeout, err := time.ParseDuration(timeoutFlag)
				if err != nil {
					return fail(stderr, "events", fmt.Errorf("invalid --timeout %q: %w", timeoutFlag, err))
				}
				if err := doEventsWatch(path, filter, afterFlag, timeout, 250*time.Millisecond, stdout); err != nil {
					return fail(stderr, "events", err)
				}
				return nil
			}
			if sinceFlag != "" {
				d, err := time.ParseDuration(sinceFlag)
				if err != nil {
					return fail(stderr, "events", fmt.Errorf("invalid --since %q: %w", sinceFlag, err))
				}
				filter.Since = time.Now().Add(-d)
			}
			if err := doEvents(path, filter, stdout); err != nil {
				return fail(stderr, "events", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typeFilter, "type", "", "filter by event type (e.g. file.uploaded)")
	cmd.Flags().StringVar(&actorFilter, "actor", "", "filter by actor (host, engine, sync, doctor)")
	cmd.Flags().StringVar(&sinceFlag, "since", "", "show events since duration ago (e.g. 1h, 30m)")
	cmd.Flags().BoolVar(&watchFlag, "watch", false, "block until matching events arrive")
	cmd.Flags().StringVar(&timeoutFlag, "timeout", "30s", "max wait duration for --watch (e.g. 30s, 5m)")
	cmd.Flags().Uint64Var(&afterFlag, "after", 0, "resume watching from this sequence number (0 = current head)")
	return cmd
}

// doEvents prints the events at path matching filter as a table.
func doEvents(path string, filter events.Filter, stdout io.Writer) error {
	evts, err := events.ReadFiltered(path, filter)
	if err != nil {
		return err
	}
	if len(evts) == 0 {
		fmt.Fprintln(stdout, "No events.") //nolint:errcheck // best-effort stdout
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTYPE\tCOMPUTER\tACTOR\tSUBJECT\tMESSAGE\tTIME") //nolint:errcheck // best-effort stdout
	for _, e := range evts {
		msg := e.Message
		if len(msg) > 40 {
			msg = msg[:37] + "..."
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n", //nolint:errcheck // best-effort stdout
			e.Seq, e.Type, e.Computer, e.Actor, e.Subject, msg,
			e.Ts.Format("2006-01-02 15:04:05"),
		)
	}
	return tw.Flush()
}

// doEventsWatch polls the log for events past afterSeq matching filter and
// prints them as JSON lines. It returns once something was printed or the
// timeout expires.
func doEventsWatch(path string, filter events.Filter, afterSeq uint64, timeout, poll time.Duration, stdout io.Writer) error {
	if afterSeq == 0 {
		seq, err := events.ReadLatestSeq(path)
		if err != nil {
			return err
		}
		afterSeq = seq
	}
	filter.AfterSeq = afterSeq

	var offset int64
	deadline := time.Now().Add(timeout)
	for {
		evts, next, err := events.ReadFrom(path, offset)
		if err != nil {
			return err
		}
		offset = next

		var matches []events.Event
		for _, e := range evts {
			if filter.Match(e) {
				matches = append(matches, e)
			}
		}
		if len(matches) > 0 {
			return printEventsJSON(matches, stdout)
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(poll)
	}
}

func printEventsJSON(evts []events.Event, stdout io.Writer) error {
	for _, e := range evts {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		fmt.Fprintln(stdout, string(data)) //nolint:errcheck // best-effort stdout
	}
	return nil
}
