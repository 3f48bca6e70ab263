package store

import (
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New([]*models.Chunk{
		{ID: "c1", Content: "a"},
		{ID: "c1", Content: "b"},
	})
	if err == nil {
		t.Fatal("expected error for duplicate IDs")
	}
}

func TestNewRejectsEmptyID(t *testing.T) {
	_, err := New([]*models.Chunk{{Content: "a", SourceDocID: "doc"}})
	if err == nil {
		t.Fatal("expected error for empty ID")
	}
}

func TestGetAndAll(t *testing.T) {
	chunks := []*models.Chunk{
		{ID: "c1", Content: "grace period"},
		{ID: "c2", Content: "maternity"},
	}
	s, err := New(chunks)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d", s.Len())
	}
	if got := s.Get("c2"); got == nil || got.Content != "maternity" {
		t.Errorf("Get(c2) = %v", got)
	}
	if s.Get("missing") != nil {
		t.Error("Get(missing) should be nil")
	}
	if len(s.All()) != 2 || s.All()[0].ID != "c1" {
		t.Error("All should preserve ingestion order")
	}
}
