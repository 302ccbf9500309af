package transfer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/example/chunktrainer/internal/database"
)

// exportHeader is the canonical column set. Every name resolves back
// through columnAliases, so an exported file re-imports losslessly.
var exportHeader = []string{
	"id", "prompt", "answer", "ease_factor", "interval_days",
	"repetitions", "due_at", "created_at",
}

// ExportCSV writes every chunk of the learner, content plus full
// scheduling state, as CSV. Oldest chunks first, matching insertion order.
func ExportCSV(ctx context.Context, store *database.Store, userID string, w io.Writer) error {
	chunks, err := store.AllChunks(ctx, userID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	// AllChunks returns newest first; export oldest first.
	for i := len(chunks) - 1; i >= 0; i-- {
		c := chunks[i]
		record := []string{
			strconv.FormatInt(c.ID, 10),
			c.Prompt,
			c.Answer,
			strconv.FormatFloat(c.EaseFactor, 'g', -1, 64),
			strconv.Itoa(c.IntervalDays),
			strconv.Itoa(c.Repetitions),
			c.DueAt.UTC().Format(time.RFC3339Nano),
			c.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", c.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
