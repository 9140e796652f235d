package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/nepbot/pkg/models"
)

// ScriptWriter is the part of the script repository the importer needs
type ScriptWriter interface {
	GetByTitle(ctx context.Context, title string) (*models.Script, error)
	Create(ctx context.Context, s *models.Script) error
	Update(ctx context.Context, s *models.Script) error
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath              string // Path to the Excel or CSV file
	SheetName             string // Name of the sheet to import, first sheet when empty
	StartRow              int    // The row to start importing from (1-based index)
	TitleColumn           string
	CategoryColumn        string
	ProfileColumn         string
	SituationColumn       string
	EmergencyColumn       string
	Phrase1Column         string
	Phrase2Column         string
	Phrase3Column         string
	Action1Column         string
	Action2Column         string
	Action3Column         string
	NeurologicalTipColumn string
	LocationColumn        string
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		StartRow:              2, // skip header
		TitleColumn:           "A",
		CategoryColumn:        "B",
		ProfileColumn:         "C",
		SituationColumn:       "D",
		EmergencyColumn:       "E",
		Phrase1Column:         "F",
		Phrase2Column:         "G",
		Phrase3Column:         "H",
		Action1Column:         "I",
		Action2Column:         "J",
		Action3Column:         "K",
		NeurologicalTipColumn: "L",
		LocationColumn:        "M",
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	Skipped        int
	Errors         []string
}

// ImportScripts imports scripts from an Excel or CSV file
func ImportScripts(ctx context.Context, repo ScriptWriter, config ImportConfig) (*ImportResult, error) {
	if config.StartRow < 1 {
		config.StartRow = 1
	}
	var (
		rows [][]string
		err  error
	)
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		rows, err = readCSV(config.FilePath)
	} else {
		rows, err = readExcel(config.FilePath, config.SheetName)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		// Skip header rows
		if i < config.StartRow-1 {
			continue
		}
		if isBlank(row) {
			continue
		}
		result.TotalProcessed++

		if err := processRow(ctx, repo, row, config, result); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		}
	}
	return result, nil
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// processRow creates or updates one script; scripts are matched by title
func processRow(ctx context.Context, repo ScriptWriter, row []string, config ImportConfig, result *ImportResult) error {
	cell := func(column string) string {
		if column == "" {
			return ""
		}
		if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	script := models.Script{
		Title:             cell(config.TitleColumn),
		Category:          cell(config.CategoryColumn),
		Profile:           strings.ToUpper(cell(config.ProfileColumn)),
		SituationTrigger:  cell(config.SituationColumn),
		EmergencySuitable: parseBool(cell(config.EmergencyColumn)),
		Phrase1:           cell(config.Phrase1Column),
		Phrase2:           cell(config.Phrase2Column),
		Phrase3:           cell(config.Phrase3Column),
		Action1:           cell(config.Action1Column),
		Action2:           cell(config.Action2Column),
		Action3:           cell(config.Action3Column),
		NeurologicalTip:   cell(config.NeurologicalTipColumn),
		Location:          strings.ToLower(cell(config.LocationColumn)),
	}

	if script.Title == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if script.Phrase1 == "" {
		return fmt.Errorf("script %q has no phrases", script.Title)
	}

	existing, err := repo.GetByTitle(ctx, script.Title)
	if err != nil {
		return fmt.Errorf("failed to look up script: %w", err)
	}
	if existing != nil {
		script.ID = existing.ID
		if err := repo.Update(ctx, &script); err != nil {
			return fmt.Errorf("failed to update script: %w", err)
		}
		result.Updated++
		return nil
	}

	if err := repo.Create(ctx, &script); err != nil {
		return fmt.Errorf("failed to create script: %w", err)
	}
	result.Created++
	return nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "y", "true", "x", "sos":
		return true
	}
	return false
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(strings.TrimSpace(column))
	index := 0
	for i := 0; i < len(column); i++ {
		if column[i] < 'A' || column[i] > 'Z' {
			return -1
		}
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
