package reporter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clicksolve/captcha-agent/internal/agent"
	"github.com/clicksolve/captcha-agent/internal/wire"
)

func sampleResult() *agent.Result {
	return &agent.Result{
		Outcome: agent.OutcomeSolved,
		Attempts: []agent.Attempt{
			{Number: 1, StartedAt: time.Now(), Outcome: agent.AttemptNotConfirmed},
			{Number: 2, StartedAt: time.Now(), Outcome: agent.AttemptSuccess},
		},
		Target:         "8",
		PointsReturned: 4,
		PointsClicked:  3,
		Duration:       42 * time.Second,
		SolvedPoints:   []wire.Point{{X: 100, Y: 100}, {X: 200, Y: 200}, {X: 300, Y: 300}},
	}
}

func TestBuilderBuild(t *testing.T) {
	b := NewBuilder("https://example.com/login")
	b.AddMetadata("solver", "2captcha")

	report := b.Build(sampleResult())

	assert.NotEmpty(t, report.ReportID)
	assert.Equal(t, "https://example.com/login", report.PageURL)
	assert.Equal(t, "solved", report.Outcome)
	assert.Equal(t, "8", report.Target)
	assert.Equal(t, 4, report.PointsReturned)
	assert.Equal(t, 3, report.PointsClicked)
	require.Len(t, report.Attempts, 2)
	assert.Equal(t, "not-confirmed", report.Attempts[0].Outcome)
	assert.Equal(t, "success", report.Attempts[1].Outcome)
	assert.Equal(t, "2captcha", report.Metadata["solver"])
}

func TestReportDurationMarshalsAsMilliseconds(t *testing.T) {
	res := sampleResult()
	res.Duration = 1500 * time.Millisecond
	report := NewBuilder("https://example.com").Build(res)

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(1500), decoded["duration_ms"])
}

func TestReportSaveToDir(t *testing.T) {
	dir := t.TempDir()
	report := NewBuilder("https://example.com").Build(sampleResult())

	path, err := report.SaveToDir(filepath.Join(dir, "reports"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Report
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, report.ReportID, loaded.ReportID)
	assert.Equal(t, report.Outcome, loaded.Outcome)
	assert.Len(t, loaded.SolvedPoints, 3)
}
