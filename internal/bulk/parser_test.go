package bulk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
	apperrors "github.com/PSA-Corporate-Learning-Branch/psaelmsync/pkg/errors"
)

func rosterBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseRoster(t *testing.T) {
	data := rosterBytes(t, [][]interface{}{
		{"course_id", "guid", "email", "first_name", "last_name"},
		{"2240", "A1B2C3D4E5F64A7B", "pat.meyer@gov.bc.ca", "Pat", "Meyer"},
		{"2241", "F6E5D4C3B2A14B8C", "sam.singh@gov.bc.ca", "Sam", "Singh"},
	})

	records, err := NewParser().Parse(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "2240", first.CourseID)
	assert.Equal(t, "A1B2C3D4E5F64A7B", first.GUID)
	assert.Equal(t, "pat.meyer@gov.bc.ca", first.Email)
	assert.Equal(t, "roster-row-2", first.EnrolmentID)
	assert.Equal(t, string(model.CourseStateEnrol), first.CourseState, "state defaults to Enrol")
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), first.DateCreated, "date defaults to the upload day")

	assert.Equal(t, "roster-row-3", records[1].EnrolmentID)
}

func TestParseRosterExplicitStateAndDate(t *testing.T) {
	data := rosterBytes(t, [][]interface{}{
		{"course_id", "guid", "email", "first_name", "last_name", "course_state", "date"},
		{"2240", "A1B2C3D4E5F64A7B", "pat.meyer@gov.bc.ca", "Pat", "Meyer", "Suspend", "2024-02-15"},
	})

	records, err := NewParser().Parse(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "Suspend", records[0].CourseState)
	assert.Equal(t, "2024-02-15", records[0].DateCreated)
}

func TestParseRosterHeaderMatchingIsLenient(t *testing.T) {
	data := rosterBytes(t, [][]interface{}{
		{"Course_ID", " GUID ", "Email", "FIRST_NAME", "last_name"},
		{"2240", "A1B2C3D4E5F64A7B", "pat.meyer@gov.bc.ca", "Pat", "Meyer"},
	})

	records, err := NewParser().Parse(context.Background(), data)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestParseRosterSkipsBlankRows(t *testing.T) {
	data := rosterBytes(t, [][]interface{}{
		{"course_id", "guid", "email", "first_name", "last_name"},
		{"2240", "A1B2C3D4E5F64A7B", "pat.meyer@gov.bc.ca", "Pat", "Meyer"},
		{"", "", "", "", ""},
		{"2241", "F6E5D4C3B2A14B8C", "sam.singh@gov.bc.ca", "Sam", "Singh"},
	})

	records, err := NewParser().Parse(context.Background(), data)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestParseRosterMissingColumn(t *testing.T) {
	data := rosterBytes(t, [][]interface{}{
		{"course_id", "email", "first_name", "last_name"},
		{"2240", "pat.meyer@gov.bc.ca", "Pat", "Meyer"},
	})

	_, err := NewParser().Parse(context.Background(), data)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "guid")
}

func TestParseRosterMissingValue(t *testing.T) {
	data := rosterBytes(t, [][]interface{}{
		{"course_id", "guid", "email", "first_name", "last_name"},
		{"2240", "A1B2C3D4E5F64A7B", "pat.meyer@gov.bc.ca", "Pat", "Meyer"},
		{"2241", "F6E5D4C3B2A14B8C", "", "Sam", "Singh"},
	})

	_, err := NewParser().Parse(context.Background(), data)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 3")
	assert.Contains(t, err.Error(), "email is required")
}

func TestParseRosterHeaderOnly(t *testing.T) {
	data := rosterBytes(t, [][]interface{}{
		{"course_id", "guid", "email", "first_name", "last_name"},
	})

	_, err := NewParser().Parse(context.Background(), data)

	assert.ErrorIs(t, err, apperrors.ErrInvalidFileFormat)
}

func TestParseRosterGarbageBytes(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("this is not a spreadsheet"))

	assert.Error(t, err)
}
