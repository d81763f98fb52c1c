package export

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/stepparity/pkg/parity"

	_ "modernc.org/sqlite"
)

// SQLiteExporter writes one parity result to a SQLite database.
type SQLiteExporter struct {
	Result   *parity.Result
	Notes    []parity.Note
	GameType string
	Weights  parity.Weights
	Title    string
}

// NewSQLiteExporter creates an exporter for res computed from notes. The
// weights default to parity.DefaultWeights.
func NewSQLiteExporter(res *parity.Result, notes []parity.Note, gameType string) *SQLiteExporter {
	return &SQLiteExporter{
		Result:   res,
		Notes:    notes,
		GameType: gameType,
		Weights:  parity.DefaultWeights(),
	}
}

// Export writes the database to dbPath, replacing any existing file.
func (e *SQLiteExporter) Export(dbPath string) error {
	if e.Result == nil {
		return fmt.Errorf("nothing to export: empty result")
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	// Remove existing database if present
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing database: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := CreateSchema(db); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if err := e.insertRows(db); err != nil {
		return fmt.Errorf("insert rows: %w", err)
	}

	if err := e.insertLabels(db); err != nil {
		return fmt.Errorf("insert labels: %w", err)
	}

	if err := e.insertTechniques(db); err != nil {
		return fmt.Errorf("insert techniques: %w", err)
	}

	if err := e.insertMeta(db); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}

	if err := OptimizeDatabase(db); err != nil {
		return fmt.Errorf("optimize database: %w", err)
	}

	return nil
}

func (e *SQLiteExporter) insertRows(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO rows (idx, beat, second, columns, facing, cost, candle)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res := e.Result
	for i, s := range res.States {
		columns, err := json.Marshal(s.Columns)
		if err != nil {
			return fmt.Errorf("marshal columns of row %d: %w", i, err)
		}
		var candle sql.NullString
		if f, ok := res.Candles[i]; ok {
			candle = sql.NullString{String: f.String(), Valid: true}
		}
		_, err = stmt.Exec(i, s.Beat, s.Second, string(columns),
			at(res.Facings, i), at(res.RowCosts, i), candle)
		if err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (e *SQLiteExporter) insertLabels(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO labels (note_key, beat, second, col, note_type, foot, override)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range e.Notes {
		foot, ok := e.Result.ParityLabels[n.Key()]
		if !ok {
			continue
		}
		var override sql.NullString
		if n.Override != parity.OverrideNone {
			override = sql.NullString{String: n.Override.String(), Valid: true}
		}
		if _, err := stmt.Exec(n.Key(), n.Beat, n.Second, n.Col, n.Type.String(), foot.String(), override); err != nil {
			return fmt.Errorf("insert label %s: %w", n.Key(), err)
		}
	}

	return tx.Commit()
}

func (e *SQLiteExporter) insertTechniques(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	techStmt, err := tx.Prepare(`INSERT OR IGNORE INTO techniques (row_idx, technique) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer techStmt.Close()

	for i, techs := range e.Result.Techniques {
		for _, t := range techs {
			if _, err := techStmt.Exec(i, string(t)); err != nil {
				return fmt.Errorf("insert technique %s at row %d: %w", t, i, err)
			}
		}
	}

	errStmt, err := tx.Prepare(`INSERT OR IGNORE INTO technique_errors (row_idx, error) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer errStmt.Close()

	rows := make([]int, 0, len(e.Result.TechniqueErrors))
	for i := range e.Result.TechniqueErrors {
		rows = append(rows, i)
	}
	sort.Ints(rows)
	for _, i := range rows {
		for _, te := range e.Result.TechniqueErrors[i] {
			if _, err := errStmt.Exec(i, string(te)); err != nil {
				return fmt.Errorf("insert technique error %s at row %d: %w", te, i, err)
			}
		}
	}

	return tx.Commit()
}

func (e *SQLiteExporter) insertMeta(db *sql.DB) error {
	weights, err := json.Marshal(e.Weights.Map())
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	hash, err := ChartHash(e.Notes)
	if err != nil {
		return err
	}

	meta := map[string]string{
		"generated_at":   time.Now().UTC().Format(time.RFC3339),
		"schema_version": strconv.Itoa(SchemaVersion),
		"game_type":      e.GameType,
		"row_count":      strconv.Itoa(len(e.Result.States)),
		"note_count":     strconv.Itoa(len(e.Notes)),
		"total_cost":     strconv.FormatFloat(e.Result.Cost, 'g', -1, 64),
		"weights":        string(weights),
		"chart_hash":     hash,
	}
	if e.Title != "" {
		meta["title"] = e.Title
	}

	for key, value := range meta {
		if err := InsertMetaValue(db, key, value); err != nil {
			return fmt.Errorf("insert meta %s: %w", key, err)
		}
	}

	return nil
}

// ChartHash returns a content hash of the notes, stable across exports of
// the same chart.
func ChartHash(notes []parity.Note) (string, error) {
	data, err := json.Marshal(notes)
	if err != nil {
		return "", fmt.Errorf("hash chart: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func at(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}
