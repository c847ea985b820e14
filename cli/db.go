// Materials database commands: demo seeding and inspection.
//
// Information Hiding:
// - Demo dataset contents
// - Report formatting

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/richinex/cerberus/storage"
)

// Seed populates the materials database with a small demo dataset: two
// students, a handful of questions with recorded wrong answers, and one
// described study file with triaged pages.
func Seed(ctx context.Context, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	db, err := storage.OpenMaterials(settings.Paths.MaterialsDBPath)
	if err != nil {
		return fmt.Errorf("failed to open materials database: %w", err)
	}
	defer db.Close()

	if err := seedDemoData(ctx, db); err != nil {
		return err
	}

	fmt.Printf("Seeded demo data into %s\n", settings.Paths.MaterialsDBPath)
	return nil
}

// ShowMaterials prints the curated study files and their usable pages.
func ShowMaterials(ctx context.Context, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	db, err := storage.OpenMaterials(settings.Paths.MaterialsDBPath)
	if err != nil {
		return fmt.Errorf("failed to open materials database: %w", err)
	}
	defer db.Close()

	materials, err := db.LoadMaterials(ctx)
	if err != nil {
		return fmt.Errorf("failed to load materials: %w", err)
	}

	if len(materials) == 0 {
		fmt.Println("No described materials with triaged pages. Run 'cerberus seed' for demo data.")
		return nil
	}

	for name, data := range materials {
		fmt.Printf("%s\n", name)
		fmt.Printf("  %s\n", data.FileInfo.Description)
		if len(data.FileInfo.KeyConcepts) > 0 {
			fmt.Printf("  Key concepts: %s\n", strings.Join(data.FileInfo.KeyConcepts, ", "))
		}
		for _, page := range data.Pages {
			marker := " "
			if page.Needed != nil && *page.Needed {
				marker = "*"
			}
			fmt.Printf("  %s page %d: %s\n", marker, page.PageNumber, page.Description)
		}
		fmt.Println()
	}
	return nil
}

// ShowErrors prints the questions a student answered incorrectly.
func ShowErrors(ctx context.Context, studentID string, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	db, err := storage.OpenMaterials(settings.Paths.MaterialsDBPath)
	if err != nil {
		return fmt.Errorf("failed to open materials database: %w", err)
	}
	defer db.Close()

	errorsList, err := db.StudentErrors(ctx, studentID)
	if err != nil {
		return fmt.Errorf("failed to query student errors: %w", err)
	}

	if len(errorsList) == 0 {
		fmt.Printf("No recorded errors for student %s.\n", studentID)
		return nil
	}

	fmt.Printf("Errors for student %s:\n\n", studentID)
	for i, e := range errorsList {
		fmt.Printf("%d. %s\n", i+1, e.Question)
		fmt.Printf("   a) %s  b) %s  c) %s  d) %s\n", e.ChoiceA, e.ChoiceB, e.ChoiceC, e.ChoiceD)
		fmt.Printf("   Answered %s, correct %s\n\n", e.StudentChoice, e.CorrectChoice)
	}
	return nil
}

func seedDemoData(ctx context.Context, db *storage.MaterialsDB) error {
	students := []struct {
		id, name, phone, address, email string
	}{
		{"S1", "Ada Okafor", "+1-555-0100", "12 Birch Lane", "ada@example.edu"},
		{"S2", "Jonas Weber", "+1-555-0199", "4 Elm Court", "jonas@example.edu"},
	}
	for _, s := range students {
		if err := db.InsertStudent(ctx, s.id, s.name, s.phone, s.address, s.email); err != nil {
			return fmt.Errorf("failed to insert student %s: %w", s.id, err)
		}
	}

	questions := []struct {
		question, a, b, c, d, correct string
		wrong                         map[string]string
	}{
		{
			"What is the slope of the line y = 3x + 2?",
			"2", "3", "5", "1/3", "b",
			map[string]string{"S1": "a"},
		},
		{
			"Which expression equals x^2 - 9 when factored?",
			"(x-3)(x-3)", "(x+3)(x+3)", "(x-3)(x+3)", "x(x-9)", "c",
			map[string]string{"S1": "d", "S2": "a"},
		},
		{
			"What is the solution of 2x + 6 = 0?",
			"x = 3", "x = -3", "x = 6", "x = -6", "b",
			map[string]string{"S2": "a"},
		},
	}
	for _, q := range questions {
		questionID, err := db.InsertQuestion(ctx, q.question, q.a, q.b, q.c, q.d, q.correct)
		if err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
		for studentID, choice := range q.wrong {
			if err := db.InsertChoice(ctx, studentID, questionID, choice, q.correct); err != nil {
				return fmt.Errorf("failed to insert choice: %w", err)
			}
		}
	}

	needed := true
	notNeeded := false
	file := "algebra_basics.pdf"
	if _, err := db.InsertMaterial(ctx, file, "all", "described",
		"Introduction to linear equations, slopes, and factoring",
		nil, `["slope", "linear equations", "factoring"]`); err != nil {
		return fmt.Errorf("failed to insert file summary: %w", err)
	}
	pages := []struct {
		page        int
		description string
		concept     string
		needed      *bool
	}{
		{3, "Slope-intercept form with worked examples", "slope", &needed},
		{4, "Graphing lines from equations", "slope", &needed},
		{5, "Chapter review questions", "", &notNeeded},
		{11, "Factoring difference of squares", "factoring", &needed},
		{12, "Factoring practice problems", "factoring", &needed},
	}
	for _, p := range pages {
		current := fmt.Sprintf("algebra_basics_page_%d", p.page)
		if _, err := db.InsertMaterial(ctx, file, current, "described", p.description, p.needed, p.concept); err != nil {
			return fmt.Errorf("failed to insert page row: %w", err)
		}
	}

	return nil
}
