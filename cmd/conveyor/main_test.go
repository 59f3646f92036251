package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conveyor/internal/api"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// A second init must refuse to overwrite.
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}

func TestBuildPhaseRows(t *testing.T) {
	updated := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rows := buildPhaseRows([]api.PhaseView{
		{QueueID: "q-1", ParentTaskID: "task-1", PhaseNumber: 1, Title: "plan", Status: "running", UpdatedAt: updated},
		{QueueID: "q-2", ParentTaskID: "task-1", PhaseNumber: 2, Title: "build", Status: "queued", UpdatedAt: updated},
	})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "q-1" || rows[0][2] != "1" || rows[0][4] != "running" {
		t.Fatalf("unexpected row: %#v", rows[0])
	}
}

func TestBuildHealthRows(t *testing.T) {
	rows := buildHealthRows(api.HealthView{Total: 4, Ready: 1, Running: 1, Failed: 2})
	if len(rows) != 4 {
		t.Fatalf("expected 3 status rows plus total, got %d", len(rows))
	}
	last := rows[len(rows)-1]
	if last[0] != "total" || last[1] != "4" {
		t.Fatalf("unexpected total row: %#v", last)
	}

	if rows := buildHealthRows(api.HealthView{}); rows != nil {
		t.Fatalf("expected no rows for empty queue, got %#v", rows)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]string{"A", "B"},
		[][]string{{"only-a"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	if !strings.Contains(out, "only-a") {
		t.Fatalf("expected cell rendered, got %q", out)
	}
}

func TestYesNo(t *testing.T) {
	if yesNo(true) != "yes" || yesNo(false) != "no" {
		t.Fatal("unexpected yesNo output")
	}
}
