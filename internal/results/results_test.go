package results

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otcheredev/pacs-study-toolkit/internal/models"
)

func sampleRecords() models.ResultSet {
	return models.ResultSet{
		{
			models.LabelPatientID:       "PAT001",
			models.LabelInstitutionName: "Example Hospital",
			models.LabelStudyDate:       "20241006",
			models.LabelStudyTime:       "091500",
			models.LabelModality:        "CT",
		},
		{
			models.LabelPatientID:       "PAT002",
			models.LabelInstitutionName: models.Unknown,
			models.LabelStudyDate:       "20241007",
			models.LabelStudyTime:       "",
			models.LabelModality:        "MR",
		},
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	records := sampleRecords()

	data, err := Marshal(records)
	require.NoError(t, err)

	loaded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestMarshalNilSet(t *testing.T) {
	data, err := Marshal(nil)
	require.NoError(t, err)

	assert.Equal(t, "[]\n", string(data))

	loaded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestMarshalEndsWithNewline(t *testing.T) {
	data, err := Marshal(sampleRecords())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestUnmarshalMalformedDocument(t *testing.T) {
	_, err := Unmarshal([]byte(`{"not": "an array"}`))

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, -1, parseErr.Index)
}

func TestUnmarshalMalformedRecord(t *testing.T) {
	_, err := Unmarshal([]byte(`[{"(0010,0020)": "PAT001"}, "not an object"]`))

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 1, parseErr.Index)
	assert.Contains(t, err.Error(), "index 1")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_results.json")
	records := sampleRecords()

	require.NoError(t, Save(path, records))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query_results.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, Save(path, nil))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
