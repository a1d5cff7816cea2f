package bulk

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

// Parser reads an uploaded roster spreadsheet into intake records. The
// first sheet is used; the header row names the columns, matched
// case-insensitively.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

var requiredColumns = []string{"course_id", "guid", "email", "first_name", "last_name"}

// Parse converts roster rows to the same record shape the feed delivers,
// so downstream classification and auditing treat both identically. Rows
// without a date column share the upload day as their creation stamp:
// re-uploading a file on the same day dedups row by row, while a later
// upload of the same roster processes fresh.
func (p *Parser) Parse(ctx context.Context, data []byte) ([]model.IntakeRecord, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open roster file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	if len(rows) < 2 { // Header + at least one data row
		return nil, apperrors.ErrInvalidFileFormat
	}

	header := rows[0]
	columnMap := make(map[string]int)
	for i, col := range header {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range requiredColumns {
		if _, exists := columnMap[col]; !exists {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	uploadDay := time.Now().UTC().Format("2006-01-02")

	var records []model.IntakeRecord
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}

		record, err := p.parseRow(row, columnMap, uploadDay, i+2)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}

		records = append(records, *record)
	}

	return records, nil
}

func (p *Parser) parseRow(row []string, columnMap map[string]int, uploadDay string, rowNum int) (*model.IntakeRecord, error) {
	getValue := func(colName string) string {
		if idx, exists := columnMap[colName]; exists && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	for _, col := range requiredColumns {
		if getValue(col) == "" {
			return nil, fmt.Errorf("%s is required", col)
		}
	}

	state := getValue("course_state")
	if state == "" {
		state = string(model.CourseStateEnrol)
	}

	dateCreated := getValue("date")
	if dateCreated == "" {
		dateCreated = uploadDay
	}

	return &model.IntakeRecord{
		EnrolmentID:     fmt.Sprintf("roster-row-%d", rowNum),
		CourseID:        getValue("course_id"),
		CourseShortName: getValue("course_shortname"),
		CourseState:     state,
		FirstName:       getValue("first_name"),
		LastName:        getValue("last_name"),
		Email:           getValue("email"),
		GUID:            getValue("guid"),
		DateCreated:     dateCreated,
	}, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
