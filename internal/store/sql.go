package store

import (
	"strconv"
	"strings"
)

// Placeholder renders the n-th (1-based) bind parameter of a dialect.
type Placeholder func(n int) string

// Dollar renders Postgres-style placeholders.
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Question renders SQLite and MySQL placeholders.
func Question(int) string { return "?" }

func where(columns []string, ph Placeholder, offset int) string {
	clauses := make([]string, len(columns))
	for i, c := range columns {
		clauses[i] = c + " = " + ph(offset+i+1)
	}
	return strings.Join(clauses, " AND ")
}

// SelectSQL reads the mutable columns of the row matching the natural key.
// Args are row.KeyValues.
func SelectSQL(row Row, ph Placeholder) string {
	return "SELECT " + strings.Join(row.Columns, ", ") +
		" FROM " + row.Table +
		" WHERE " + where(row.KeyColumns, ph, 0)
}

// InsertSQL inserts a new row. Args are row.InsertValues().
func InsertSQL(row Row, ph Placeholder) string {
	cols := row.InsertColumns()
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = ph(i + 1)
	}
	return "INSERT INTO " + row.Table +
		" (" + strings.Join(cols, ", ") + ", created_at, updated_at)" +
		" VALUES (" + strings.Join(marks, ", ") + ", CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)"
}

// UpdateSQL rewrites the mutable columns and bumps updated_at. Args are
// UpdateArgs(row).
func UpdateSQL(row Row, ph Placeholder) string {
	sets := make([]string, len(row.Columns))
	for i, c := range row.Columns {
		sets[i] = c + " = " + ph(i+1)
	}
	return "UPDATE " + row.Table +
		" SET " + strings.Join(sets, ", ") + ", updated_at = CURRENT_TIMESTAMP" +
		" WHERE " + where(row.KeyColumns, ph, len(row.Columns))
}

// UpdateArgs orders the bind values for UpdateSQL.
func UpdateArgs(row Row) []any {
	return append(append([]any(nil), row.Values...), row.KeyValues...)
}

// SpeakersSQL lists speaker candidates. Args are (name, jurisdiction).
func SpeakersSQL(ph Placeholder) string {
	return "SELECT id, name, jurisdiction FROM " + TablePoliticians +
		" WHERE LOWER(name) = LOWER(" + ph(1) + ") OR jurisdiction = " + ph(2) +
		" ORDER BY id"
}
