// Package transfer handles bulk import and export of chunks. CSV is the
// primary interchange format; spreadsheet (.xlsx) import is supported for
// learners who keep their phrase lists in Excel.
package transfer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/chunktrainer/internal/database"
	"github.com/example/chunktrainer/pkg/models"
)

// ImportResult holds the outcome of an import operation.
type ImportResult struct {
	TotalProcessed int      `json:"total_processed"`
	Created        int      `json:"created"`        // new chunks with default scheduling state
	Restored       int      `json:"restored"`       // rows that carried prior scheduling state
	Skipped        int      `json:"skipped"`        // empty rows
	Errors         []string `json:"errors,omitempty"`
}

// Import reads chunks from a CSV or XLSX stream, dispatching on the file
// extension. Rows with only prompt and answer become new chunks; rows that
// also carry scheduling columns are restored with that state, which makes
// export -> import a lossless round trip.
func Import(ctx context.Context, store *database.Store, userID, filename string, r io.Reader, now time.Time) (*ImportResult, error) {
	if strings.ToLower(filepath.Ext(filename)) == ".xlsx" {
		return importExcel(ctx, store, userID, r, now)
	}
	return importCSV(ctx, store, userID, r, now)
}

func importCSV(ctx context.Context, store *database.Store, userID string, r io.Reader, now time.Time) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return importRows(ctx, store, userID, rows, now)
}

func importExcel(ctx context.Context, store *database.Store, userID string, r io.Reader, now time.Time) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return importRows(ctx, store, userID, rows, now)
}

func importRows(ctx context.Context, store *database.Store, userID string, rows [][]string, now time.Time) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("import file is empty")
	}
	cols, err := resolveColumns(rows[0])
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	err = store.InTx(ctx, func(tx *database.Store) error {
		for i, row := range rows[1:] {
			line := i + 2 // 1-based, after the header
			result.TotalProcessed++

			prompt := strings.TrimSpace(cols.get(row, colPrompt))
			answer := strings.TrimSpace(cols.get(row, colAnswer))
			if prompt == "" && answer == "" {
				result.Skipped++
				continue
			}
			if prompt == "" || answer == "" {
				result.Errors = append(result.Errors,
					fmt.Sprintf("row %d: prompt and answer must both be present", line))
				continue
			}

			chunk, restored, err := cols.buildChunk(row, userID, prompt, answer, now)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
				continue
			}
			if err := tx.UpsertChunk(ctx, chunk); err != nil {
				// A row naming someone else's chunk id is that row's
				// problem, not the whole file's.
				if errors.Is(err, database.ErrIDConflict) {
					result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
					continue
				}
				return err
			}
			if restored {
				result.Restored++
			} else {
				result.Created++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Column roles recognized in the header row.
const (
	colID = iota
	colPrompt
	colAnswer
	colEaseFactor
	colIntervalDays
	colRepetitions
	colDueAt
	colCreatedAt
	numCols
)

// columnAliases maps normalized header names to column roles. The
// jp/en aliases keep old exports from the original trainer importable.
var columnAliases = map[string]int{
	"id":           colID,
	"prompt":       colPrompt,
	"jpprompt":     colPrompt,
	"jp":           colPrompt,
	"answer":       colAnswer,
	"enanswer":     colAnswer,
	"en":           colAnswer,
	"easefactor":   colEaseFactor,
	"ef":           colEaseFactor,
	"intervaldays": colIntervalDays,
	"interval":     colIntervalDays,
	"repetitions":  colRepetitions,
	"reviewcount":  colRepetitions,
	"dueat":        colDueAt,
	"nextduedate":  colDueAt,
	"createdat":    colCreatedAt,
}

type columnIndex [numCols]int

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ReplaceAll(h, "_", "")
	return h
}

func resolveColumns(header []string) (*columnIndex, error) {
	var cols columnIndex
	for i := range cols {
		cols[i] = -1
	}
	for i, h := range header {
		name := normalizeHeader(h)
		if role, ok := columnAliases[name]; ok {
			cols[role] = i
			continue
		}
		// Fall back to prefix detection for jp*/en* style headers.
		if strings.HasPrefix(name, "jp") && cols[colPrompt] == -1 {
			cols[colPrompt] = i
		} else if strings.HasPrefix(name, "en") && cols[colAnswer] == -1 {
			cols[colAnswer] = i
		}
	}
	if cols[colPrompt] == -1 || cols[colAnswer] == -1 {
		return nil, fmt.Errorf("import header must contain prompt and answer columns")
	}
	return &cols, nil
}

func (c *columnIndex) get(row []string, role int) string {
	idx := c[role]
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// buildChunk turns one data row into a chunk. The second return value
// reports whether the row carried prior scheduling state.
func (c *columnIndex) buildChunk(row []string, userID, prompt, answer string, now time.Time) (*models.Chunk, bool, error) {
	chunk := models.NewChunk(userID, prompt, answer, now)

	restored := false
	if v := c.get(row, colID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("bad id %q", v)
		}
		chunk.ID = id
	}
	if v := c.get(row, colEaseFactor); v != "" {
		ef, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, false, fmt.Errorf("bad ease factor %q", v)
		}
		chunk.EaseFactor = ef
		restored = true
	}
	if v := c.get(row, colIntervalDays); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, false, fmt.Errorf("bad interval %q", v)
		}
		chunk.IntervalDays = days
		restored = true
	}
	if v := c.get(row, colRepetitions); v != "" {
		reps, err := strconv.Atoi(v)
		if err != nil {
			return nil, false, fmt.Errorf("bad repetition count %q", v)
		}
		chunk.Repetitions = reps
		restored = true
	}
	if v := c.get(row, colDueAt); v != "" {
		due, err := parseTime(v)
		if err != nil {
			return nil, false, fmt.Errorf("bad due date %q", v)
		}
		chunk.DueAt = due
		restored = true
	}
	if v := c.get(row, colCreatedAt); v != "" {
		created, err := parseTime(v)
		if err != nil {
			return nil, false, fmt.Errorf("bad creation date %q", v)
		}
		chunk.CreatedAt = created
	}

	if err := chunk.Validate(); err != nil {
		// Refuse to import out-of-invariant state rather than persist it.
		return nil, false, fmt.Errorf("%w", err)
	}
	return chunk, restored, nil
}

func parseTime(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}
