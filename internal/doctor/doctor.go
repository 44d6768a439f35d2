package doctor

import (
	"fmt"
	"io"
	"strings"

	"github.com/copycat-emu/copycat/internal/events"
)

// Report summarizes the results of a doctor run.
type Report struct {
	Passed int
	Warned int
	Failed int
	// Fixed checks also count as Passed.
	Fixed int
}

// Healthy reports whether no check failed.
func (r *Report) Healthy() bool { return r.Failed == 0 }

// Doctor runs registered health checks and reports results. The zero
// value is ready to use.
type Doctor struct {
	// Recorder, when set, receives a store_repaired event per fixed check.
	Recorder events.Recorder

	checks []Check
}

// Register adds a check to the doctor's check list.
func (d *Doctor) Register(c Check) {
	d.checks = append(d.checks, c)
}

// Checks returns the names of the registered checks in run order.
func (d *Doctor) Checks() []string {
	names := make([]string, len(d.checks))
	for i, c := range d.checks {
		names[i] = c.Name()
	}
	return names
}

// Run executes all registered checks, streaming results to w as each
// completes. When fix is true, fixable checks that fail are remediated
// and re-run.
func (d *Doctor) Run(ctx *CheckContext, w io.Writer, fix bool) *Report {
	r := &Report{}
	for _, c := range d.checks {
		result := c.Run(ctx)

		if fix && result.Status != StatusOK && c.CanFix() {
			before := result.Message
			if err := c.Fix(ctx); err != nil {
				result.Details = append(result.Details, "fix: "+err.Error())
			} else {
				result = c.Run(ctx)
				if result.Status == StatusOK {
					result.Fixed = true
					d.record(ctx, c.Name(), before)
				}
			}
		}

		printResult(w, result, ctx.Verbose)

		switch {
		case result.Fixed:
			r.Fixed++
			r.Passed++
		case result.Status == StatusOK:
			r.Passed++
		case result.Status == StatusWarning:
			r.Warned++
		case result.Status == StatusError:
			r.Failed++
		}
	}
	return r
}

func (d *Doctor) record(ctx *CheckContext, check, message string) {
	if d.Recorder == nil {
		return
	}
	d.Recorder.Record(events.Event{
		Type:     events.StoreRepaired,
		Computer: ctx.Computer,
		Actor:    events.ActorDoctor,
		Subject:  check,
		Message:  message,
	})
}

// printResult writes a single check result line to w.
func printResult(w io.Writer, r *CheckResult, verbose bool) {
	var icon string
	switch {
	case r.Fixed, r.Status == StatusOK:
		icon = "✓"
	case r.Status == StatusWarning:
		icon = "⚠"
	default:
		icon = "✗"
	}

	suffix := ""
	if r.Fixed {
		suffix = " (fixed)"
	}
	fmt.Fprintf(w, "  %s %s: %s%s\n", icon, r.Name, r.Message, suffix) //nolint:errcheck // best-effort output
	if verbose {
		for _, line := range r.Details {
			fmt.Fprintf(w, "      %s\n", line) //nolint:errcheck // best-effort output
		}
	}
	if r.FixHint != "" && r.Status != StatusOK && !r.Fixed {
		fmt.Fprintf(w, "      hint: %s\n", r.FixHint) //nolint:errcheck // best-effort output
	}
}

// PrintSummary writes the final summary line to w.
func PrintSummary(w io.Writer, r *Report) {
	var parts []string
	if r.Passed > 0 {
		parts = append(parts, fmt.Sprintf("%d passed", r.Passed))
	}
	if r.Warned > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", r.Warned))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Fixed > 0 {
		parts = append(parts, fmt.Sprintf("%d fixed", r.Fixed))
	}
	if len(parts) == 0 {
		fmt.Fprintln(w, "\nNo checks ran.") //nolint:errcheck // best-effort output
		return
	}
	fmt.Fprintf(w, "\n%s\n", strings.Join(parts, ", ")) //nolint:errcheck // best-effort output
}
