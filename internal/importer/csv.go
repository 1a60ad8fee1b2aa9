package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"turnero/internal/models"
)

// CreateFunc creates one ticket; the dispatch engine satisfies it.
type CreateFunc func(ctx context.Context, displayName *string, queueDate time.Time, actorID *string) (models.Ticket, error)

type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// ImportCSV reads a roster export and creates one ticket per row, all
// entering the pipeline at its first stage. The first column is the display
// name; a header row named display_name or nombre is skipped, as are blank
// rows. The import is not transactional across rows: rows created before a
// failure stay created.
func ImportCSV(ctx context.Context, r io.Reader, queueDate time.Time, actorID string, create CreateFunc) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var result Result
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("row %d: %w", line+1, err)
		}
		line++

		name := ""
		if len(record) > 0 {
			name = strings.TrimSpace(record[0])
		}
		if name == "" || (line == 1 && isHeader(name)) {
			result.Skipped++
			continue
		}

		displayName := name
		if _, err := create(ctx, &displayName, queueDate, &actorID); err != nil {
			return result, fmt.Errorf("row %d: %w", line, err)
		}
		result.Created++
	}
	return result, nil
}

func isHeader(value string) bool {
	switch strings.ToLower(value) {
	case "display_name", "name", "nombre":
		return true
	}
	return false
}
