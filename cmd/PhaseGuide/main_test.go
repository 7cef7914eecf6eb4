package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunPhase(t *testing.T) {
	t.Setenv("PHASEGUIDE_STATE_DIR", t.TempDir())
	t.Setenv("PHASEGUIDE_LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"phase", "--last-period", "2024-01-01", "--today", "2024-01-03"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "menstrual") {
		t.Errorf("expected menstrual phase, got: %s", stdout.String())
	}
}

func TestRunReportsErrors(t *testing.T) {
	t.Setenv("PHASEGUIDE_STATE_DIR", t.TempDir())
	t.Setenv("PHASEGUIDE_LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"phase", "--last-period", "2024-01-01", "--cycle-length=-3"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Error:") {
		t.Errorf("stderr should carry the error, got: %s", stderr.String())
	}
}

func TestRunInvalidLogLevel(t *testing.T) {
	t.Setenv("PHASEGUIDE_LOG_LEVEL", "chatty")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"catalog"}, &stdout, &stderr); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}
