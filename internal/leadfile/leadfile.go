// Package leadfile loads lead batches from operator-supplied XLSX
// spreadsheets for bulk import.
package leadfile

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// Options configures spreadsheet parsing.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

var requiredColumns = []string{"place_id", "name", "website_url", "segment"}

// ReadLeads parses a workbook into leads ready for import. The first row
// must be a header naming at least place_id, name, website_url, and segment;
// review_count and rating are optional. Rows without a place_id are skipped.
// Imported leads are queued for scraping.
func ReadLeads(path string, opts Options) ([]model.Lead, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "leadfile: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("leadfile: sheet is empty")
	}

	cols, err := headerIndex(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}

	var leads []model.Lead
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		placeID := cellAt(cells, cols["place_id"])
		if placeID == "" {
			continue
		}

		lead := model.Lead{
			LeadID:     uuid.New().String(),
			PlaceID:    placeID,
			Name:       cellAt(cells, cols["name"]),
			WebsiteURL: cellAt(cells, cols["website_url"]),
			Segment:    cellAt(cells, cols["segment"]),
			Status:     model.StatusQueuedForScrape,
		}

		if idx, ok := cols["review_count"]; ok {
			if n, err := strconv.Atoi(cellAt(cells, idx)); err == nil {
				lead.ReviewCount = n
			}
		}
		if idx, ok := cols["rating"]; ok {
			if r, err := strconv.ParseFloat(cellAt(cells, idx), 64); err == nil {
				lead.Rating = r
			}
		}

		leads = append(leads, lead)
	}

	return leads, nil
}

// headerIndex maps normalized column names to their positions.
func headerIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("leadfile: missing required column %q", required)
		}
	}
	return cols, nil
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("leadfile: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("leadfile: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}
