package doctor

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/copycat-emu/copycat/internal/events"
)

// mockCheck is a configurable Check for testing the runner.
type mockCheck struct {
	name   string
	status CheckStatus
	msg    string
	canFix bool
	fixErr error
	fixed  bool // set by Fix
}

func (m *mockCheck) Name() string { return m.name }
func (m *mockCheck) Run(_ *CheckContext) *CheckResult {
	st := m.status
	if m.fixed {
		st = StatusOK
	}
	return &CheckResult{Name: m.name, Status: st, Message: m.msg}
}
func (m *mockCheck) CanFix() bool { return m.canFix }
func (m *mockCheck) Fix(_ *CheckContext) error {
	if m.fixErr != nil {
		return m.fixErr
	}
	m.fixed = true
	return nil
}

func TestDoctorAllPass(t *testing.T) {
	d := &Doctor{}
	d.Register(&mockCheck{name: "a", status: StatusOK, msg: "ok"})
	d.Register(&mockCheck{name: "b", status: StatusOK, msg: "ok"})

	var buf bytes.Buffer
	r := d.Run(&CheckContext{}, &buf, false)

	if r.Passed != 2 {
		t.Errorf("Passed = %d, want 2", r.Passed)
	}
	if r.Warned != 0 || r.Failed != 0 || r.Fixed != 0 {
		t.Errorf("unexpected counts: warned=%d failed=%d fixed=%d", r.Warned, r.Failed, r.Fixed)
	}
	if !r.Healthy() {
		t.Error("Healthy() = false, want true")
	}
	if !strings.Contains(buf.String(), "✓ a: ok") {
		t.Errorf("output missing check a: %q", buf.String())
	}
}

func TestDoctorMixedResults(t *testing.T) {
	d := &Doctor{}
	d.Register(&mockCheck{name: "ok-check", status: StatusOK, msg: "fine"})
	d.Register(&mockCheck{name: "warn-check", status: StatusWarning, msg: "hmm"})
	d.Register(&mockCheck{name: "fail-check", status: StatusError, msg: "bad"})

	var buf bytes.Buffer
	r := d.Run(&CheckContext{}, &buf, false)

	if r.Passed != 1 || r.Warned != 1 || r.Failed != 1 {
		t.Errorf("report = %+v, want 1 passed, 1 warned, 1 failed", r)
	}
	if r.Healthy() {
		t.Error("Healthy() = true, want false")
	}
	out := buf.String()
	for _, want := range []string{"✓ ok-check", "⚠ warn-check", "✗ fail-check"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestDoctorChecks(t *testing.T) {
	d := &Doctor{}
	d.Register(&mockCheck{name: "config"})
	d.Register(&mockCheck{name: "tree-links"})
	got := strings.Join(d.Checks(), ",")
	if got != "config,tree-links" {
		t.Errorf("Checks() = %q, want %q", got, "config,tree-links")
	}
}

func TestDoctorFixRecordsRepair(t *testing.T) {
	rec := &events.Fake{}
	d := &Doctor{Recorder: rec}
	d.Register(&mockCheck{name: "fixable", status: StatusWarning, msg: "problem", canFix: true})

	var buf bytes.Buffer
	r := d.Run(&CheckContext{Computer: 4}, &buf, true)

	if r.Fixed != 1 || r.Passed != 1 {
		t.Errorf("report = %+v, want 1 fixed counted as passed", r)
	}
	if !strings.Contains(buf.String(), "(fixed)") {
		t.Errorf("output missing (fixed): %q", buf.String())
	}
	if len(rec.Events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(rec.Events))
	}
	e := rec.Events[0]
	if e.Type != events.StoreRepaired || e.Subject != "fixable" || e.Computer != 4 || e.Message != "problem" {
		t.Errorf("event = %+v, want store_repaired for fixable on computer 4", e)
	}
}

func TestDoctorFixNotRequested(t *testing.T) {
	d := &Doctor{}
	d.Register(&mockCheck{name: "fixable", status: StatusWarning, msg: "problem", canFix: true})

	var buf bytes.Buffer
	r := d.Run(&CheckContext{}, &buf, false)

	if r.Fixed != 0 {
		t.Errorf("Fixed = %d, want 0 (fix not requested)", r.Fixed)
	}
	if r.Warned != 1 {
		t.Errorf("Warned = %d, want 1", r.Warned)
	}
}

func TestDoctorFixFails(t *testing.T) {
	rec := &events.Fake{}
	d := &Doctor{Recorder: rec}
	d.Register(&mockCheck{
		name: "broken-fix", status: StatusError, msg: "bad",
		canFix: true, fixErr: errors.New("fix failed"),
	})

	var buf bytes.Buffer
	r := d.Run(&CheckContext{Verbose: true}, &buf, true)

	if r.Fixed != 0 || r.Failed != 1 {
		t.Errorf("report = %+v, want 1 failed, 0 fixed", r)
	}
	if !strings.Contains(buf.String(), "fix: fix failed") {
		t.Errorf("verbose output missing fix error: %q", buf.String())
	}
	if len(rec.Events) != 0 {
		t.Errorf("recorded %d events, want 0", len(rec.Events))
	}
}

func TestDoctorNoChecks(t *testing.T) {
	d := &Doctor{}
	var buf bytes.Buffer
	r := d.Run(&CheckContext{}, &buf, false)

	if *r != (Report{}) {
		t.Errorf("empty doctor should have all zeros: %+v", r)
	}
}

func TestDoctorVerbose(t *testing.T) {
	for _, verbose := range []bool{true, false} {
		d := &Doctor{}
		d.Register(&detailCheck{})

		var buf bytes.Buffer
		d.Run(&CheckContext{Verbose: verbose}, &buf, false)

		if got := strings.Contains(buf.String(), "extra info"); got != verbose {
			t.Errorf("verbose=%v: details shown = %v: %q", verbose, got, buf.String())
		}
	}
}

func TestPrintSummary(t *testing.T) {
	tests := []struct {
		name   string
		report *Report
		want   string
	}{
		{"all pass", &Report{Passed: 3}, "3 passed"},
		{"mixed", &Report{Passed: 2, Warned: 1, Failed: 1}, "2 passed, 1 warnings, 1 failed"},
		{"with fixes", &Report{Passed: 2, Fixed: 1}, "2 passed, 1 fixed"},
		{"empty", &Report{}, "No checks ran."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			PrintSummary(&buf, tt.report)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("summary = %q, want to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestDoctorFixHint(t *testing.T) {
	d := &Doctor{}
	d.Register(&hintCheck{})

	var buf bytes.Buffer
	d.Run(&CheckContext{}, &buf, false)

	if !strings.Contains(buf.String(), "hint: try this") {
		t.Errorf("output missing fix hint: %q", buf.String())
	}
}

// detailCheck returns a result with Details for verbose testing.
type detailCheck struct{}

func (c *detailCheck) Name() string { return "detail-check" }
func (c *detailCheck) Run(_ *CheckContext) *CheckResult {
	return &CheckResult{Name: "detail-check", Status: StatusOK, Message: "ok", Details: []string{"extra info"}}
}
func (c *detailCheck) CanFix() bool              { return false }
func (c *detailCheck) Fix(_ *CheckContext) error { return nil }

// hintCheck returns a failing result with a FixHint.
type hintCheck struct{}

func (c *hintCheck) Name() string { return "hint-check" }
func (c *hintCheck) Run(_ *CheckContext) *CheckResult {
	return &CheckResult{Name: "hint-check", Status: StatusError, Message: "problem", FixHint: "try this"}
}
func (c *hintCheck) CanFix() bool              { return false }
func (c *hintCheck) Fix(_ *CheckContext) error { return nil }
