package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/glebarez/go-sqlite"
)

const maxSQLRows = 50

// ErrNotReadOnly rejects statements other than SELECT/WITH queries.
var ErrNotReadOnly = errors.New("only SELECT queries are allowed")

// SQLQueryTool runs read-only queries against a sqlite database file.
type SQLQueryTool struct {
	name        string
	description string
	path        string
}

func NewSQLQueryTool(name, description, path string) *SQLQueryTool {
	return &SQLQueryTool{name: "query_" + name + "_database", description: description, path: path}
}

func (t *SQLQueryTool) Name() string { return t.name }

func (t *SQLQueryTool) Description() string {
	desc := t.description
	if desc == "" {
		desc = "Run a read-only SQL query."
	}
	return desc + " Input is a single sqlite SELECT statement; at most 50 rows are returned."
}

func (t *SQLQueryTool) Parameters() json.RawMessage {
	return querySchema("A sqlite SELECT statement.")
}

func (t *SQLQueryTool) Call(ctx context.Context, args string) (string, error) {
	var in queryArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	query := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(in.Query), ";"))
	if err := checkReadOnly(query); err != nil {
		return "", err
	}

	db, err := sql.Open("sqlite", "file:"+t.path+"?mode=ro")
	if err != nil {
		return "", err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	return formatRows(rows)
}

func checkReadOnly(query string) error {
	if query == "" {
		return errors.New("query is required")
	}
	if strings.Contains(query, ";") {
		return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}
	first := strings.ToUpper(strings.Fields(query)[0])
	if first != "SELECT" && first != "WITH" {
		return ErrNotReadOnly
	}
	return nil
}

func formatRows(rows *sql.Rows) (string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(strings.Join(cols, "\t"))

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	n := 0
	for rows.Next() {
		if n == maxSQLRows {
			b.WriteString("\n... (truncated)")
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		cells := make([]string, len(values))
		for i, v := range values {
			switch x := v.(type) {
			case nil:
				cells[i] = "NULL"
			case []byte:
				cells[i] = string(x)
			default:
				cells[i] = fmt.Sprint(x)
			}
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, "\t"))
		n++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if n == 0 {
		b.WriteString("\n(no rows)")
	}
	return b.String(), nil
}
