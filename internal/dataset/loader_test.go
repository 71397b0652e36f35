package dataset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeManifest(t *testing.T, header []string, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "manifest.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadDetectsColumnsByHeader(t *testing.T) {
	path := writeManifest(t,
		[]string{"Call ID", "Caller Phone", "Industry", "Recording URL", "Transcript"},
		[][]string{
			{"c-1", "555-0141", "plumbing", "https://cdn.example/c-1.wav", ""},
			{"c-2", "555-0142", "medical", "", "Hi, I'd like to book a check-up with Dr. Ames next week."},
		})

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "c-1", records[0].CallID)
	assert.Equal(t, "555-0141", records[0].CallerPhone)
	assert.Equal(t, "plumbing", records[0].Industry)
	assert.Equal(t, "https://cdn.example/c-1.wav", records[0].AudioURL)

	assert.Equal(t, "medical", records[1].Industry)
	assert.Empty(t, records[1].AudioURL)
	assert.NotEmpty(t, records[1].Transcript)
}

func TestLoadSkipsRowsWithoutAudioOrTranscript(t *testing.T) {
	path := writeManifest(t,
		[]string{"Call ID", "Audio URL"},
		[][]string{
			{"c-1", "https://cdn.example/c-1.wav"},
			{"c-2", "not-a-url"},
			{"c-3", ""},
		})

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "c-1", records[0].CallID)
}

func TestLoadGeneratesCallIDsWhenMissing(t *testing.T) {
	path := writeManifest(t,
		[]string{"Audio URL"},
		[][]string{{"https://cdn.example/a.wav"}})

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "row-2", records[0].CallID)
}

func TestLoadEmptyWorkbook(t *testing.T) {
	path := writeManifest(t, []string{"Call ID", "Audio URL"}, nil)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Record{
		{CallID: "a", Industry: "plumbing", AudioURL: "https://x/a.wav"},
		{CallID: "b", Industry: "plumbing", Transcript: "some transcript text"},
		{CallID: "c"},
	})
	assert.Equal(t, 3, s.TotalCalls)
	assert.Equal(t, 2, s.ByIndustry["plumbing"])
	assert.Equal(t, 1, s.ByIndustry["general"])
	assert.Equal(t, 1, s.WithTranscript)
}
