// Package storage provides the SQLite materials database.
//
// Information Hiding:
// - SQLite connection management hidden behind MaterialsDB
// - Schema and seeding details encapsulated
// - Row shape normalization (file-level vs page-level entries) internalized

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"github.com/richinex/cerberus/model"
)

var (
	pageSuffixPattern = regexp.MustCompile(`_page_(\d+)`)
	anyNumberPattern  = regexp.MustCompile(`(\d+)`)
)

// MaterialsDB wraps the study-materials database: file and page metadata,
// students, questions, and the students' answer history.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type MaterialsDB struct {
	db *sql.DB
}

// OpenMaterials opens or creates the materials database at the given path.
// Creates parent directories if they don't exist.
func OpenMaterials(path string) (*MaterialsDB, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	m := &MaterialsDB{db: db}
	if err := m.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return m, nil
}

// NewMaterialsInMemory creates an in-memory database (useful for testing).
func NewMaterialsInMemory() (*MaterialsDB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	m := &MaterialsDB{db: db}
	if err := m.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return m, nil
}

// Close closes the database connection.
func (m *MaterialsDB) Close() error {
	return m.db.Close()
}

// DB exposes the underlying handle for tool sessions that share it.
func (m *MaterialsDB) DB() *sql.DB {
	return m.db
}

func (m *MaterialsDB) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS materials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			original_filename TEXT NOT NULL,
			current_filename TEXT NOT NULL,
			status TEXT,
			description TEXT,
			needed INTEGER,
			key_concept TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_materials_original
		ON materials(original_filename);

		CREATE TABLE IF NOT EXISTS students (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT,
			address TEXT,
			email TEXT
		);

		CREATE TABLE IF NOT EXISTS questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question TEXT NOT NULL,
			a TEXT,
			b TEXT,
			c TEXT,
			d TEXT,
			correct_choice TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS student_choices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id TEXT NOT NULL,
			question_id INTEGER NOT NULL,
			student_choice TEXT NOT NULL,
			correct_choice TEXT NOT NULL,
			FOREIGN KEY (student_id) REFERENCES students(id),
			FOREIGN KEY (question_id) REFERENCES questions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_choices_student
		ON student_choices(student_id);
	`

	_, err := m.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertMaterial adds one materials row. A file-level summary uses
// currentFilename "all"; page rows use the originalname_page_N convention.
func (m *MaterialsDB) InsertMaterial(ctx context.Context, originalFilename, currentFilename, status, description string, needed *bool, keyConcept string) (int64, error) {
	var neededVal interface{}
	if needed != nil {
		if *needed {
			neededVal = 1
		} else {
			neededVal = 0
		}
	}

	result, err := m.db.ExecContext(ctx, `
		INSERT INTO materials (original_filename, current_filename, status, description, needed, key_concept)
		VALUES (?, ?, ?, ?, ?, ?)`,
		originalFilename, currentFilename, status, description, neededVal, keyConcept)
	if err != nil {
		return 0, fmt.Errorf("failed to insert material: %w", err)
	}
	return result.LastInsertId()
}

// InsertStudent adds one student row.
func (m *MaterialsDB) InsertStudent(ctx context.Context, id, name, phone, address, email string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO students (id, name, phone, address, email)
		VALUES (?, ?, ?, ?, ?)`,
		id, name, phone, address, email)
	if err != nil {
		return fmt.Errorf("failed to insert student: %w", err)
	}
	return nil
}

// InsertQuestion adds one question and returns its id.
func (m *MaterialsDB) InsertQuestion(ctx context.Context, question, a, b, c, d, correctChoice string) (int64, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO questions (question, a, b, c, d, correct_choice)
		VALUES (?, ?, ?, ?, ?, ?)`,
		question, a, b, c, d, correctChoice)
	if err != nil {
		return 0, fmt.Errorf("failed to insert question: %w", err)
	}
	return result.LastInsertId()
}

// InsertChoice records one answer a student gave.
func (m *MaterialsDB) InsertChoice(ctx context.Context, studentID string, questionID int64, studentChoice, correctChoice string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO student_choices (student_id, question_id, student_choice, correct_choice)
		VALUES (?, ?, ?, ?)`,
		studentID, questionID, studentChoice, correctChoice)
	if err != nil {
		return fmt.Errorf("failed to insert choice: %w", err)
	}
	return nil
}

// LoadMaterials returns the materials catalog keyed by original filename.
// Files are included only when they have a described file-level summary and
// at least one page marked as needed; pages come back sorted by page number.
func (m *MaterialsDB) LoadMaterials(ctx context.Context) (map[string]model.FileData, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, original_filename, current_filename, status, description, needed, key_concept
		FROM materials`)
	if err != nil {
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	defer rows.Close()

	type fileEntry struct {
		info  *model.FileInfo
		pages []model.PageInfo
	}
	entries := map[string]*fileEntry{}

	for rows.Next() {
		var (
			id               int64
			originalFilename string
			currentFilename  string
			status           sql.NullString
			description      sql.NullString
			needed           sql.NullInt64
			keyConcept       sql.NullString
		)
		if err := rows.Scan(&id, &originalFilename, &currentFilename, &status, &description, &needed, &keyConcept); err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		_ = status

		entry, ok := entries[originalFilename]
		if !ok {
			entry = &fileEntry{}
			entries[originalFilename] = entry
		}

		if currentFilename == "all" {
			var concepts []string
			if keyConcept.Valid && keyConcept.String != "" {
				_ = json.Unmarshal([]byte(keyConcept.String), &concepts)
			}
			entry.info = &model.FileInfo{
				ID:          id,
				Filename:    originalFilename,
				Description: description.String,
				KeyConcepts: concepts,
			}
			continue
		}

		var neededFlag *bool
		if needed.Valid {
			v := needed.Int64 == 1
			neededFlag = &v
		}
		entry.pages = append(entry.pages, model.PageInfo{
			ID:          id,
			PageNumber:  extractPageNumber(currentFilename),
			Filename:    currentFilename,
			Needed:      neededFlag,
			Description: description.String,
			KeyConcept:  keyConcept.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating materials: %w", err)
	}

	result := map[string]model.FileData{}
	for filename, entry := range entries {
		if entry.info == nil || entry.info.Description == "" {
			continue
		}
		hasNeeded := false
		for _, p := range entry.pages {
			if p.Needed != nil && *p.Needed {
				hasNeeded = true
				break
			}
		}
		if !hasNeeded {
			continue
		}
		sort.Slice(entry.pages, func(i, j int) bool {
			return entry.pages[i].PageNumber < entry.pages[j].PageNumber
		})
		result[filename] = model.FileData{FileInfo: *entry.info, Pages: entry.pages}
	}

	return result, nil
}

// StudentErrors returns the questions a student answered incorrectly,
// joined with the question text and choices.
func (m *MaterialsDB) StudentErrors(ctx context.Context, studentID string) ([]model.StudentError, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT q.question, q.a, q.b, q.c, q.d, q.correct_choice, sc.student_choice
		FROM student_choices sc
		JOIN questions q ON sc.question_id = q.id
		WHERE sc.student_id = ?
		AND sc.student_choice != sc.correct_choice`,
		studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query student errors: %w", err)
	}
	defer rows.Close()

	errorsList := []model.StudentError{} // Start with empty slice, not nil
	for rows.Next() {
		var e model.StudentError
		var a, b, c, d sql.NullString
		if err := rows.Scan(&e.Question, &a, &b, &c, &d, &e.CorrectChoice, &e.StudentChoice); err != nil {
			return nil, fmt.Errorf("failed to scan student error: %w", err)
		}
		e.ChoiceA, e.ChoiceB, e.ChoiceC, e.ChoiceD = a.String, b.String, c.String, d.String
		errorsList = append(errorsList, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating student errors: %w", err)
	}

	return errorsList, nil
}

// extractPageNumber pulls the page number out of an originalname_page_N.ext
// filename, falling back to the first number anywhere in the name, then 0.
func extractPageNumber(filename string) int {
	if match := pageSuffixPattern.FindStringSubmatch(filename); match != nil {
		n, _ := strconv.Atoi(match[1])
		return n
	}
	if match := anyNumberPattern.FindStringSubmatch(filename); match != nil {
		n, _ := strconv.Atoi(match[1])
		return n
	}
	return 0
}
