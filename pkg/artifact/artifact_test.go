package artifact

import (
	"strings"
	"testing"
)

func TestNewComputesHash(t *testing.T) {
	a := New("package main", "mock", "mock-1", "write main")
	if a.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if a.Version != 1 {
		t.Fatalf("expected version 1, got %d", a.Version)
	}
	if len(a.Hash) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a.Hash)
	}

	b := New("package main", "mock", "mock-1", "write main")
	if a.Hash != b.Hash {
		t.Fatalf("same content should hash identically: %s vs %s", a.Hash, b.Hash)
	}
	if a.ID == b.ID {
		t.Fatal("distinct artifacts should get distinct ids")
	}

	c := New("package other", "mock", "mock-1", "write main")
	if a.Hash == c.Hash {
		t.Fatal("different content should change the hash")
	}
}

func TestNewVersionKeepsLineage(t *testing.T) {
	a := New("draft", "mock", "mock-1", "prompt")
	b := a.NewVersion("repaired")

	if b.ID != a.ID {
		t.Fatalf("version bump changed id: %s vs %s", b.ID, a.ID)
	}
	if b.Version != 2 {
		t.Fatalf("expected version 2, got %d", b.Version)
	}
	if b.Hash == a.Hash {
		t.Fatal("new content should produce a new hash")
	}
	if a.Content != "draft" {
		t.Fatal("original artifact mutated")
	}
}

func TestWithMetadataCopies(t *testing.T) {
	a := New("content", "mock", "mock-1", "prompt")
	b := a.WithMetadata("tier", "standard")

	if _, ok := a.Metadata["tier"]; ok {
		t.Fatal("receiver metadata mutated")
	}
	if b.Metadata["tier"] != "standard" {
		t.Fatalf("expected tier=standard, got %q", b.Metadata["tier"])
	}
	if b.Hash != a.Hash || b.Version != a.Version {
		t.Fatal("metadata must not affect hash or version")
	}
}

func TestSummaryTruncates(t *testing.T) {
	a := New("first line of a long answer\nsecond line", "mock", "mock-1", "p")
	got := a.Summary(10)
	if got != "first line..." {
		t.Fatalf("unexpected summary %q", got)
	}
	if s := a.Summary(0); s != "first line of a long answer" {
		t.Fatalf("n=0 should return the whole first line, got %q", s)
	}
	if strings.Contains(a.Summary(100), "\n") {
		t.Fatal("summary must be single-line")
	}
}
