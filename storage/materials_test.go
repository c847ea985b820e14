package storage

import (
	"context"
	"testing"
)

func boolPtr(v bool) *bool { return &v }

func newSeededDB(t *testing.T) *MaterialsDB {
	t.Helper()
	db, err := NewMaterialsInMemory()
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadMaterials(t *testing.T) {
	db := newSeededDB(t)
	ctx := context.Background()

	// File summary plus pages, one of them needed.
	if _, err := db.InsertMaterial(ctx, "algebra.pdf", "all", "done", "Algebra fundamentals", nil, `["equations","factoring"]`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMaterial(ctx, "algebra.pdf", "algebra_page_2.pdf", "done", "Quadratics", boolPtr(true), "quadratic equations"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMaterial(ctx, "algebra.pdf", "algebra_page_1.pdf", "done", "Linear equations", boolPtr(false), "linear equations"); err != nil {
		t.Fatal(err)
	}

	// File with no needed pages: excluded.
	if _, err := db.InsertMaterial(ctx, "history.pdf", "all", "done", "History overview", nil, "[]"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMaterial(ctx, "history.pdf", "history_page_1.pdf", "done", "Chapter 1", boolPtr(false), ""); err != nil {
		t.Fatal(err)
	}

	// File without a summary description: excluded.
	if _, err := db.InsertMaterial(ctx, "notes.pdf", "notes_page_1.pdf", "done", "Loose notes", boolPtr(true), ""); err != nil {
		t.Fatal(err)
	}

	materials, err := db.LoadMaterials(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(materials) != 1 {
		t.Fatalf("expected 1 file, got %d: %v", len(materials), materials)
	}

	data, ok := materials["algebra.pdf"]
	if !ok {
		t.Fatal("algebra.pdf missing from materials")
	}
	if data.FileInfo.Description != "Algebra fundamentals" {
		t.Errorf("unexpected description: %q", data.FileInfo.Description)
	}
	if len(data.FileInfo.KeyConcepts) != 2 || data.FileInfo.KeyConcepts[0] != "equations" {
		t.Errorf("key concepts not decoded: %v", data.FileInfo.KeyConcepts)
	}
	if len(data.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(data.Pages))
	}
	// Sorted by page number even though inserted out of order.
	if data.Pages[0].PageNumber != 1 || data.Pages[1].PageNumber != 2 {
		t.Errorf("pages not sorted: %+v", data.Pages)
	}
	if data.Pages[0].Needed == nil || *data.Pages[0].Needed {
		t.Errorf("page 1 needed flag wrong: %+v", data.Pages[0])
	}
}

func TestStudentErrors(t *testing.T) {
	db := newSeededDB(t)
	ctx := context.Background()

	if err := db.InsertStudent(ctx, "S1", "Alice Johnson", "+1-555-0100", "12 Elm St", "alice@example.com"); err != nil {
		t.Fatal(err)
	}

	q1, err := db.InsertQuestion(ctx, "What is 2+2?", "3", "4", "5", "6", "b")
	if err != nil {
		t.Fatal(err)
	}
	q2, err := db.InsertQuestion(ctx, "What is 3*3?", "6", "8", "9", "12", "c")
	if err != nil {
		t.Fatal(err)
	}

	if err := db.InsertChoice(ctx, "S1", q1, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertChoice(ctx, "S1", q2, "c", "c"); err != nil {
		t.Fatal(err)
	}

	studentErrors, err := db.StudentErrors(ctx, "S1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(studentErrors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(studentErrors))
	}
	if studentErrors[0].Question != "What is 2+2?" {
		t.Errorf("unexpected question: %q", studentErrors[0].Question)
	}
	if studentErrors[0].StudentChoice != "a" || studentErrors[0].CorrectChoice != "b" {
		t.Errorf("unexpected choices: %+v", studentErrors[0])
	}
}

func TestStudentErrorsUnknownStudent(t *testing.T) {
	db := newSeededDB(t)

	studentErrors, err := db.StudentErrors(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(studentErrors) != 0 {
		t.Errorf("expected no errors, got %d", len(studentErrors))
	}
}

func TestExtractPageNumber(t *testing.T) {
	cases := []struct {
		filename string
		want     int
	}{
		{"algebra_page_12.pdf", 12},
		{"algebra_page_3.pdf", 3},
		{"chapter7.pdf", 7},
		{"nonumber.pdf", 0},
	}
	for _, c := range cases {
		if got := extractPageNumber(c.filename); got != c.want {
			t.Errorf("extractPageNumber(%q) = %d, want %d", c.filename, got, c.want)
		}
	}
}
