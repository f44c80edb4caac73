package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-model-service/internal/core/domain"
)

const sample = `userId,sessions,thumbs_down,churn,last_ts,level_paid
10,12,3,1,1538352117000,1
11,40,0,0,1538352118000,1
12,7,5,1,1538352119000,1
`

func TestLoad_DropsLabelAndLeakage(t *testing.T) {
	ds, err := Load(strings.NewReader(sample), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"sessions", "thumbs_down", "level_paid"}, ds.Schema.Columns())
	assert.Equal(t, []int{1, 0, 1}, ds.Y)
	assert.Equal(t, []float64{40, 0, 1}, ds.X[1])
	assert.NoError(t, ds.Validate())
}

func TestLoad_DropOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Drop = []string{"thumbs_down"}
	opts.DropConstant = true

	ds, err := Load(strings.NewReader(sample), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"sessions"}, ds.Schema.Columns())
	assert.Equal(t, []float64{7}, ds.X[2])
}

func TestLoad_BadCell(t *testing.T) {
	in := "sessions,churn\n4,0\nmany,1\n"
	_, err := Load(strings.NewReader(in), DefaultOptions())

	var cellErr *CellError
	require.ErrorAs(t, err, &cellErr)
	assert.Equal(t, 2, cellErr.Row)
	assert.Equal(t, "sessions", cellErr.Column)
	assert.ErrorIs(t, err, domain.ErrData)
}

func TestLoad_EmptyCellIsAnError(t *testing.T) {
	_, err := Load(strings.NewReader("sessions,churn\n,0\n"), DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrMalformedDataset)
}

func TestLoad_BadLabel(t *testing.T) {
	_, err := Load(strings.NewReader("sessions,churn\n4,2\n"), DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrInvalidLabel)
}

func TestLoad_MissingLabel(t *testing.T) {
	_, err := Load(strings.NewReader("sessions,other\n4,2\n"), DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrMalformedDataset)

	opts := DefaultOptions()
	opts.RequireLabel = false
	ds, err := Load(strings.NewReader("sessions,other\n4,2\n"), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"sessions", "other"}, ds.Schema.Columns())
}

func TestLoad_Empty(t *testing.T) {
	_, err := Load(strings.NewReader(""), DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)

	_, err = Load(strings.NewReader("sessions,churn\n"), DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrEmptyDataset)
}
