// In-process SQLite tool session.
//
// Exposes the same three tools as the external sqlite MCP server
// (read_query, list_tables, describe_table) against a local database
// file, so the pipeline runs without spawning a subprocess.
//
// Information Hiding:
// - SQL execution and row scanning
// - Duck-typed column values normalized to JSON-friendly types

package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SqliteSession serves read-only query tools over a SQLite database.
type SqliteSession struct {
	db     *sql.DB
	ownsDB bool
}

// NewSqliteSession opens the database at path.
func NewSqliteSession(path string) (*SqliteSession, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SqliteSession{db: db, ownsDB: true}, nil
}

// NewSqliteSessionFromDB wraps an existing handle. Close becomes a no-op;
// the handle's owner remains responsible for it.
func NewSqliteSessionFromDB(db *sql.DB) *SqliteSession {
	return &SqliteSession{db: db}
}

// ListTools returns the session's tool catalog.
func (s *SqliteSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	return []ToolInfo{
		{
			Name:        "read_query",
			Description: "Execute a SELECT query on the SQLite database",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "SELECT SQL query to execute",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "list_tables",
			Description: "List all tables in the SQLite database",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "describe_table",
			Description: "Get the schema information for a specific table",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"table_name": map[string]interface{}{
						"type":        "string",
						"description": "Name of the table to describe",
					},
				},
				"required": []string{"table_name"},
			},
		},
	}, nil
}

// CallTool executes one of the session's tools.
func (s *SqliteSession) CallTool(ctx context.Context, name string, arguments map[string]interface{}) ([]ContentItem, error) {
	switch name {
	case "read_query":
		query, _ := arguments["query"].(string)
		return s.readQuery(ctx, query)
	case "list_tables":
		return s.listTables(ctx)
	case "describe_table":
		tableName, _ := arguments["table_name"].(string)
		return s.describeTable(ctx, tableName)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// Close releases the database handle if this session opened it.
func (s *SqliteSession) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func (s *SqliteSession) readQuery(ctx context.Context, query string) ([]ContentItem, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("query is required")
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return nil, fmt.Errorf("only SELECT queries are allowed")
	}
	return s.queryAsJSON(ctx, trimmed)
}

func (s *SqliteSession) listTables(ctx context.Context) ([]ContentItem, error) {
	return s.queryAsJSON(ctx, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
}

func (s *SqliteSession) describeTable(ctx context.Context, tableName string) ([]ContentItem, error) {
	if !identifierPattern.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name: %q", tableName)
	}
	return s.queryAsJSON(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
}

// queryAsJSON runs a query and encodes every row as a column-keyed object,
// regardless of column count or types.
func (s *SqliteSession) queryAsJSON(ctx context.Context, query string) ([]ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	encoded, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}
	return TextContent(string(encoded)), nil
}

// normalizeValue converts driver values to JSON-friendly types.
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	default:
		return v
	}
}

// Verify SqliteSession implements Session
var _ Session = (*SqliteSession)(nil)
