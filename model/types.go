// Package model provides domain types shared across packages.
package model

// Recommendation is one study-material recommendation produced for a
// question the student answered incorrectly.
type Recommendation struct {
	Question      string `json:"question"`
	WrongAnswer   string `json:"wrong_answer"`
	CorrectAnswer string `json:"correct_answer,omitempty"`
	SelectedFile  string `json:"selected_file"`
	FileReasoning string `json:"file_reasoning"`
	StartPage     int    `json:"start_page"`
	EndPage       int    `json:"end_page"`
	PageReasoning string `json:"page_reasoning"`
}

// FileInfo describes a file-level summary row in the materials database.
type FileInfo struct {
	ID          int64    `json:"id"`
	Filename    string   `json:"filename"`
	Description string   `json:"description"`
	KeyConcepts []string `json:"key_concepts"`
}

// PageInfo describes a page-level row in the materials database.
// Needed is nil when the page has not been triaged yet.
type PageInfo struct {
	ID          int64  `json:"id"`
	PageNumber  int    `json:"page_number"`
	Filename    string `json:"filename"`
	Needed      *bool  `json:"needed,omitempty"`
	Description string `json:"description"`
	KeyConcept  string `json:"key_concept"`
}

// FileData combines a file summary with its page entries.
type FileData struct {
	FileInfo FileInfo   `json:"file_info"`
	Pages    []PageInfo `json:"pages"`
}

// StudentError is one question a student got wrong, joined with the
// question text and choices.
type StudentError struct {
	Question      string `json:"question"`
	ChoiceA       string `json:"a"`
	ChoiceB       string `json:"b"`
	ChoiceC       string `json:"c"`
	ChoiceD       string `json:"d"`
	CorrectChoice string `json:"correct_choice"`
	StudentChoice string `json:"student_choice"`
}
