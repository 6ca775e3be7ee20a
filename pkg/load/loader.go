package load

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/Sriram-PR/paper-scraper/pkg/models"
	"github.com/Sriram-PR/paper-scraper/pkg/utils"
)

// IdentifierColumns is the header priority for the identifier column, matched exactly
var IdentifierColumns = []string{"doi", "DOI", "Doi", "doi_link", "url", "link"}

// Journal list headers, as exported from the NLM catalog
const (
	JournalAbbreviationColumn = "PubMed Abbreviation"
	JournalISSNColumn         = "Issn"
)

// Selection is the outcome of reading an identifier file
type Selection struct {
	Column      string   // Header of the column the identifiers came from
	Fallback    bool     // True when no preferred header matched and the first column was used
	Identifiers []string // Trimmed, non-empty cells in row order
}

// LoadIdentifiers reads the identifier column of a CSV, TSV or XLSX file.
// On failure it returns nil and an error wrapping utils.ErrDataLoad.
func LoadIdentifiers(path string, log *logrus.Entry) ([]string, error) {
	sel, err := Load(path)
	if err != nil {
		return nil, err
	}
	if sel.Fallback {
		log.Warnf("No identifier column (%s) in %s, using first column %q", strings.Join(IdentifierColumns, ", "), path, sel.Column)
	}
	log.Infof("Loaded %d identifiers from %s (column %q)", len(sel.Identifiers), path, sel.Column)
	return sel.Identifiers, nil
}

// Load reads path and picks the identifier column
func Load(path string) (Selection, error) {
	rows, err := readRows(path)
	if err != nil {
		return Selection{}, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Selection{}, fmt.Errorf("%w: %s has no header row", utils.ErrDataLoad, path)
	}

	header := rows[0]
	col, fallback := pickColumn(header)

	sel := Selection{Column: strings.TrimSpace(header[col]), Fallback: fallback}
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[col]); v != "" {
			sel.Identifiers = append(sel.Identifiers, v)
		}
	}
	return sel, nil
}

// LoadJournals reads the abbreviation and ISSN columns of a journal list.
// Rows with neither value are skipped. A missing ISSN column is allowed.
func LoadJournals(path string) ([]models.Journal, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s has no header row", utils.ErrDataLoad, path)
	}

	abbrCol, issnCol := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case JournalAbbreviationColumn:
			abbrCol = i
		case JournalISSNColumn:
			issnCol = i
		}
	}
	if abbrCol < 0 {
		return nil, fmt.Errorf("%w: %s has no %q column", utils.ErrDataLoad, path, JournalAbbreviationColumn)
	}

	var journals []models.Journal
	for _, row := range rows[1:] {
		j := models.Journal{Abbreviation: cell(row, abbrCol), ISSN: cell(row, issnCol)}
		if j.Abbreviation == "" && j.ISSN == "" {
			continue
		}
		journals = append(journals, j)
	}
	return journals, nil
}

func pickColumn(header []string) (int, bool) {
	for _, want := range IdentifierColumns {
		for i, h := range header {
			if strings.TrimSpace(h) == want {
				return i, false
			}
		}
	}
	return 0, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// readRows dispatches on the file extension; unknown extensions are read as CSV
func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readSpreadsheet(path)
	case ".tsv", ".tab":
		return readDelimited(path, '\t')
	default:
		return readDelimited(path, ',')
	}
}

func readDelimited(path string, sep rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", utils.ErrDataLoad, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sep
	r.FieldsPerRecord = -1 // Ragged rows are common in hand-edited lists
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", utils.ErrDataLoad, path, err)
		}
		if len(rows) == 0 && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff") // Excel CSV exports carry a BOM
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readSpreadsheet(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", utils.ErrDataLoad, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s has no sheets", utils.ErrDataLoad, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q of %s: %w", utils.ErrDataLoad, sheets[0], path, err)
	}
	return rows, nil
}
