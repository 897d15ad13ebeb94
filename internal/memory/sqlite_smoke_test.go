package memory_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/HendryAvila/flowstate/internal/memory"
	_ "modernc.org/sqlite"
)

func openSmokeDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), name) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteDSNPragmas(t *testing.T) {
	db := openSmokeDB(t, "pragmas.db")

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("failed to enable WAL mode: %v", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected WAL mode, got %q", mode)
	}

	var fk, timeout int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("failed to query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("expected foreign_keys=1 from the DSN, got %d", fk)
	}
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("failed to query busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Errorf("expected busy_timeout=5000 from the DSN, got %d", timeout)
	}
}

func TestSQLiteCascadeFiresDeleteTriggers(t *testing.T) {
	db := openSmokeDB(t, "cascade.db")

	_, err := db.Exec(`
		CREATE TABLE parents (id INTEGER PRIMARY KEY);
		CREATE TABLE children (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL REFERENCES parents(id) ON DELETE CASCADE);
		CREATE TABLE gone (child_id INTEGER);
		CREATE TRIGGER children_ad AFTER DELETE ON children BEGIN
			INSERT INTO gone (child_id) VALUES (old.id);
		END;
		INSERT INTO parents (id) VALUES (1);
		INSERT INTO children (id, parent_id) VALUES (10, 1), (11, 1);
	`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	if _, err := db.Exec("DELETE FROM parents WHERE id = 1"); err != nil {
		t.Fatalf("failed to delete parent: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM gone").Scan(&n); err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected cascade to fire the trigger twice, got %d", n)
	}
}

func TestFTS5PorterExternalContent(t *testing.T) {
	db := openSmokeDB(t, "fts5.db")

	_, err := db.Exec(`
		CREATE TABLE units (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, body TEXT NOT NULL);
		CREATE VIRTUAL TABLE units_fts USING fts5(title, body, content='units', content_rowid='id', tokenize='porter unicode61');
		CREATE TRIGGER units_ai AFTER INSERT ON units BEGIN
			INSERT INTO units_fts(rowid, title, body) VALUES (new.id, new.title, new.body);
		END;
		CREATE TRIGGER units_ad AFTER DELETE ON units BEGIN
			INSERT INTO units_fts(units_fts, rowid, title, body) VALUES ('delete', old.id, old.title, old.body);
		END;
	`)
	if err != nil {
		t.Fatalf("failed to create FTS5 schema: %v", err)
	}

	docs := []struct{ title, body string }{
		{"Gateway timeouts", "Connections were timing out under heavy load"},
		{"Circuit breaker", "Stops retries from amplifying a saturated upstream"},
		{"Café menu", "Résumé of naïve caching"},
	}
	for _, d := range docs {
		if _, err := db.Exec("INSERT INTO units (title, body) VALUES (?, ?)", d.title, d.body); err != nil {
			t.Fatalf("failed to insert %q: %v", d.title, err)
		}
	}

	count := func(query string) int {
		t.Helper()
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM units_fts WHERE units_fts MATCH ?", query).Scan(&n)
		if err != nil {
			t.Fatalf("MATCH %q: %v", query, err)
		}
		return n
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"stemmed verb", `"timed"`, 1},
		{"stemmed plural", `"connection"`, 1},
		{"diacritics folded", `"cafe"`, 1},
		{"or of quoted terms", `"retry" OR "load"`, 2},
		{"no match", `"kubernetes"`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := count(tt.query); got != tt.want {
				t.Errorf("MATCH %s: got %d, want %d", tt.query, got, tt.want)
			}
		})
	}

	if _, err := db.Exec("DELETE FROM units WHERE title = 'Circuit breaker'"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if got := count(`"retry"`); got != 0 {
		t.Errorf("deleted row still matches: %d", got)
	}
}

func TestFTS5QuotedOperatorsAreLiteral(t *testing.T) {
	db := openSmokeDB(t, "fts5_quoted.db")

	_, err := db.Exec(`
		CREATE VIRTUAL TABLE docs_fts USING fts5(content, tokenize='porter unicode61');
		INSERT INTO docs_fts(content) VALUES ('hello world test data');
	`)
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	// Each word wrapped in quotes, as the store's sanitizer emits them.
	queries := []string{
		`"NEAR(hello" OR "world)"`,
		`"col:value"`,
		`"AND" OR "hello"`,
		`"hello*"`,
	}
	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			rows, err := db.Query("SELECT content FROM docs_fts WHERE docs_fts MATCH ?", q)
			if err != nil {
				t.Fatalf("quoted query %q failed: %v", q, err)
			}
			defer rows.Close()
			for rows.Next() {
				var content string
				_ = rows.Scan(&content)
			}
			if err := rows.Err(); err != nil {
				t.Errorf("rows: %v", err)
			}
		})
	}
}

func TestSQLiteFTS5PrefixWithPorter(t *testing.T) {
	db := openSmokeDB(t, "prefix.db")

	_, err := db.Exec(`
		CREATE VIRTUAL TABLE docs USING fts5(body, tokenize='porter unicode61', prefix='2 3');
		INSERT INTO docs (body) VALUES ('Timeout'), ('timing out under load');
	`)
	if err != nil {
		t.Fatalf("failed to create fts table: %v", err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{`"timeo"*`, 1},
		{`"time"*`, 2},
		{`"timeo"`, 0},
	}
	for _, tt := range tests {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM docs WHERE docs MATCH ?", tt.query).Scan(&n); err != nil {
			t.Fatalf("MATCH %s: %v", tt.query, err)
		}
		if n != tt.want {
			t.Errorf("MATCH %s: got %d rows, want %d", tt.query, n, tt.want)
		}
	}
}

func TestSanitizeFTS_PrefixTerms(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"timeo", `"timeo"*`},
		{"db pool", `"db" OR "pool"*`},
		{`say "hi" -- now`, `"say"* OR "hi" OR "now"*`},
		{"***", ""},
	}
	for _, tt := range tests {
		if got := memory.SanitizeFTS(tt.in); got != tt.want {
			t.Errorf("SanitizeFTS(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
