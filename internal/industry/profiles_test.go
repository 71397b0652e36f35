package industry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callintel-go/internal/types"
)

func TestWeightsSumToOneForEveryIndustry(t *testing.T) {
	for _, name := range Names() {
		p := Get(name)
		require.Len(t, p.Weights, 12, "industry %s", name)
		sum := 0.0
		for _, w := range p.Weights {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 0.001, "industry %s", name)
	}
}

func TestGetFallsBackToGeneral(t *testing.T) {
	assert.Equal(t, "general", Get("aviation").Name)
	assert.Equal(t, "general", Get("").Name)
	assert.Equal(t, "plumbing", Get("  Plumbing ").Name)
}

func TestRetentionInheritsGeneralBaseline(t *testing.T) {
	// plumbing only overrides recordings and transcriptions
	p := Get("plumbing")
	assert.Equal(t, 365, p.RetentionFor(types.RecordExtractions))
	assert.Equal(t, 2555, p.RetentionFor(types.RecordComplianceLogs))
	assert.Equal(t, 90, p.RetentionFor(types.RecordRecordings))
}

func TestMedicalWindowsShorterThanGeneral(t *testing.T) {
	med := Get("medical")
	gen := Get("general")
	assert.Less(t, med.RetentionFor(types.RecordRecordings), gen.RetentionFor(types.RecordRecordings))
	assert.Less(t, med.RetentionFor(types.RecordTranscriptions), gen.RetentionFor(types.RecordTranscriptions))
}

func TestComplianceWindowIsLongestEverywhere(t *testing.T) {
	cats := []types.RecordCategory{
		types.RecordRecordings, types.RecordTranscriptions,
		types.RecordExtractions, types.RecordIdentifiers,
	}
	for _, name := range Names() {
		p := Get(name)
		logsDays := p.RetentionFor(types.RecordComplianceLogs)
		for _, cat := range cats {
			assert.GreaterOrEqual(t, logsDays, p.RetentionFor(cat), "industry %s category %s", name, cat)
		}
	}
}

func TestEveryProfileHasPromptAndDefaultType(t *testing.T) {
	for _, name := range Names() {
		p := Get(name)
		assert.NotEmpty(t, p.PromptTemplate, "industry %s", name)
		assert.NotEmpty(t, p.DefaultType, "industry %s", name)
		assert.NotEmpty(t, p.Keywords[p.DefaultType], "industry %s default type has no keywords", name)
	}
}

func writeOverrides(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "industries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesAppliesTuning(t *testing.T) {
	p := Get("financial")
	origDays := p.RetentionFor(types.RecordRecordings)
	origMerge := p.AutoMergeCombined
	t.Cleanup(func() {
		p.RetentionDays[types.RecordRecordings] = origDays
		p.AutoMergeCombined = origMerge
	})

	path := writeOverrides(t, `
financial:
  auto_merge_combined: true
  retention_days:
    recordings: 120
`)
	require.NoError(t, LoadOverrides(path))
	assert.Equal(t, 120, p.RetentionFor(types.RecordRecordings))
	assert.True(t, p.AutoMergeCombined)
}

func TestLoadOverridesRejectsUnknownIndustry(t *testing.T) {
	path := writeOverrides(t, "aviation:\n  auto_merge_combined: true\n")
	err := LoadOverrides(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown industry")
}

func TestLoadOverridesRejectsBadWeightSum(t *testing.T) {
	path := writeOverrides(t, `
general:
  weights:
    time_specificity: 0.5
    contact_completeness: 0.2
`)
	err := LoadOverrides(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights sum")
}

func TestLoadOverridesMissingFile(t *testing.T) {
	assert.Error(t, LoadOverrides(filepath.Join(t.TempDir(), "nope.yaml")))
}
