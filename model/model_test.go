package model

import (
	"bytes"
	"testing"
)

func TestTrajectorySummary(t *testing.T) {
	data, err := TrajectorySummary("2.0")
	if err != nil {
		t.Fatalf("TrajectorySummary: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("# Summary generated on")) {
		t.Errorf("unexpected file start: %q", data[:40])
	}
	if n := bytes.Count(data, []byte("\n")); n != 539 {
		t.Errorf("line count = %d, want 539", n)
	}
}

func TestTrajectorySummary_Unknown(t *testing.T) {
	if _, err := TrajectorySummary("1.0"); err == nil {
		t.Error("expected error for version without a model file")
	}
}

func TestVersions(t *testing.T) {
	v := Versions()
	if len(v) != 1 || v[0] != "2.0" {
		t.Errorf("Versions = %v, want [2.0]", v)
	}
}
