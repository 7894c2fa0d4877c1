package fts

import (
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/starford/zotindex/internal/models"
	"github.com/starford/zotindex/internal/sqlitedb"
)

// Index is one FTS4 database file. A folded index stores every cell
// transliterated to ASCII.
type Index struct {
	path   string
	schema Schema
	folded bool
	conn   *sql.DB
	ranker *Ranker
	logger *slog.Logger
}

// Hit is one ranked search result.
type Hit struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// Open opens the index file at path and creates its table if needed.
func Open(path string, schema Schema, folded bool, logger *slog.Logger) (*Index, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sqlitedb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fts: %w", err)
	}
	ix := &Index{
		path:   path,
		schema: schema,
		folded: folded,
		conn:   conn,
		ranker: NewRanker(schema.Weights()),
		logger: logger,
	}
	if err := ix.Create(); err != nil {
		conn.Close()
		return nil, err
	}
	return ix, nil
}

// Path returns the index file path.
func (ix *Index) Path() string {
	return ix.path
}

// Folded reports whether the index stores ASCII-folded text.
func (ix *Index) Folded() bool {
	return ix.folded
}

// Close closes the underlying connection.
func (ix *Index) Close() error {
	return ix.conn.Close()
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func (ix *Index) columnList() string {
	names := ix.schema.Names()
	for i, n := range names {
		names[i] = quote(n)
	}
	return strings.Join(names, ", ")
}

// Create creates the virtual table with one column per schema column. A
// table left by a different schema is dropped first; its rows come back
// with the next Rebuild.
func (ix *Index) Create() error {
	existing, err := ix.tableColumns()
	if err != nil {
		return err
	}
	if len(existing) > 0 && !slices.Equal(existing, ix.schema.Names()) {
		ix.logger.Warn("fts: schema changed, dropping table",
			slog.String("table", ix.schema.Table),
			slog.String("path", ix.path),
			slog.String("old", strings.Join(existing, ",")))
		if _, err := ix.conn.Exec(`DROP TABLE ` + quote(ix.schema.Table)); err != nil {
			return fmt.Errorf("fts: drop %s: %w", ix.schema.Table, err)
		}
	}

	q := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts4(%s)`,
		quote(ix.schema.Table), ix.columnList())
	if _, err := ix.conn.Exec(q); err != nil {
		return fmt.Errorf("fts: create %s: %w", ix.schema.Table, err)
	}
	return nil
}

// tableColumns lists the columns of the existing table, or nothing when
// the table does not exist.
func (ix *Index) tableColumns() ([]string, error) {
	rows, err := ix.conn.Query(`SELECT name FROM pragma_table_info(?)`, ix.schema.Table)
	if err != nil {
		return nil, fmt.Errorf("fts: table info %s: %w", ix.schema.Table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("fts: table info %s: %w", ix.schema.Table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Populate inserts one row per item with INSERT OR IGNORE. Existing rows
// are never touched, so populating a filled table only adds rows.
func (ix *Index) Populate(items iter.Seq2[models.Item, error]) (int, error) {
	return ix.fill(items, false)
}

// Rebuild empties the table and populates it again in one transaction.
func (ix *Index) Rebuild(items iter.Seq2[models.Item, error]) (int, error) {
	return ix.fill(items, true)
}

func (ix *Index) fill(items iter.Seq2[models.Item, error], clear bool) (int, error) {
	start := time.Now()

	tx, err := ix.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("fts: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if clear {
		if _, err := tx.Exec(`DELETE FROM ` + quote(ix.schema.Table)); err != nil {
			return 0, fmt.Errorf("fts: clear: %w", err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ix.schema.Columns)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES (%s)`,
		quote(ix.schema.Table), ix.columnList(), placeholders))
	if err != nil {
		return 0, fmt.Errorf("fts: prepare insert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for it, err := range items {
		if err != nil {
			return 0, err
		}
		row := ix.schema.Row(&it)
		args := make([]any, len(row))
		for i, v := range row {
			if ix.folded {
				v = Fold(v)
			}
			args[i] = v
		}
		if _, err := stmt.Exec(args...); err != nil {
			return 0, fmt.Errorf("fts: insert %s: %w", it.Key, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("fts: commit: %w", err)
	}
	ix.logger.Debug("fts: added items",
		slog.String("path", ix.path),
		slog.Bool("folded", ix.folded),
		slog.Int("count", count),
		slog.Duration("took", time.Since(start)))
	return count, nil
}

// Count returns the number of rows in the table.
func (ix *Index) Count() (int, error) {
	var n int
	if err := ix.conn.QueryRow(`SELECT count(*) FROM ` + quote(ix.schema.Table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("fts: count: %w", err)
	}
	return n, nil
}

// Match runs a raw FTS MATCH expression and returns every hit ranked by the
// schema weights, best first. limit <= 0 returns all hits.
func (ix *Index) Match(expr string, limit int) ([]Hit, error) {
	q := fmt.Sprintf(`SELECT %s, matchinfo(%s) FROM %s WHERE %s MATCH ?`,
		quote(KeyColumn), quote(ix.schema.Table), quote(ix.schema.Table), quote(ix.schema.Table))
	rows, err := ix.conn.Query(q, expr)
	if err != nil {
		return nil, fmt.Errorf("fts: match: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var key string
		var info []byte
		if err := rows.Scan(&key, &info); err != nil {
			return nil, fmt.Errorf("fts: scan: %w", err)
		}
		score, err := ix.ranker.Score(info)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Key: key, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fts: match: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Key < hits[j].Key
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
