package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/clicksolve/captcha-agent/internal/agent"
	"github.com/clicksolve/captcha-agent/internal/wire"
)

// Report represents a complete solve report
type Report struct {
	// ReportID is a unique identifier for this report
	ReportID string `json:"report_id"`
	// PageURL is the URL of the page carrying the captcha
	PageURL string `json:"page_url"`
	// Timestamp is when the solve started
	Timestamp time.Time `json:"timestamp"`
	// Duration is how long the solve took, in milliseconds
	Duration int64 `json:"duration_ms"`
	// Outcome is the terminal state (solved, abandoned, fatal)
	Outcome string `json:"outcome"`
	// Target is the digit the user was asked to click, if known
	Target string `json:"target,omitempty"`
	// Attempts records every pipeline pass
	Attempts []AttemptInfo `json:"attempts"`
	// PointsReturned is how many coordinates the service answered with
	PointsReturned int `json:"points_returned"`
	// PointsClicked is how many of them were acted on
	PointsClicked int `json:"points_clicked"`
	// SolvedPoints are the service's coordinates in solver space
	SolvedPoints []wire.Point `json:"solved_points,omitempty"`
	// Artifacts contains debug files written alongside the report
	Artifacts *Artifacts `json:"artifacts,omitempty"`
	// Metadata contains additional information
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AttemptInfo summarizes one pipeline pass
type AttemptInfo struct {
	// Number is the 1-based attempt index
	Number int `json:"number"`
	// StartedAt is when the attempt began
	StartedAt time.Time `json:"started_at"`
	// Outcome classifies how it ended
	Outcome string `json:"outcome"`
	// PhaseMillis maps pipeline phase name to elapsed milliseconds
	PhaseMillis map[string]int64 `json:"phase_ms,omitempty"`
}

// Artifacts lists debug files on disk and, once uploaded, their S3 URLs
type Artifacts struct {
	// CapturePath is the raw captcha screenshot
	CapturePath string `json:"capture_path,omitempty"`
	// AnnotatedPath is the screenshot with the clicked points drawn on
	AnnotatedPath string `json:"annotated_path,omitempty"`
	// CaptureS3URL is set after upload
	CaptureS3URL string `json:"capture_s3_url,omitempty"`
	// AnnotatedS3URL is set after upload
	AnnotatedS3URL string `json:"annotated_s3_url,omitempty"`
}

// Builder assembles a Report from a solve result
type Builder struct {
	pageURL  string
	metadata map[string]string
}

// NewBuilder creates a report builder for the given page
func NewBuilder(pageURL string) *Builder {
	return &Builder{
		pageURL:  pageURL,
		metadata: make(map[string]string),
	}
}

// AddMetadata adds a metadata key-value pair
func (b *Builder) AddMetadata(key, value string) {
	b.metadata[key] = value
}

// Build constructs the final report from a solve result
func (b *Builder) Build(res *agent.Result) *Report {
	attempts := make([]AttemptInfo, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		info := AttemptInfo{
			Number:    a.Number,
			StartedAt: a.StartedAt,
			Outcome:   string(a.Outcome),
		}
		if len(a.Phases) > 0 {
			info.PhaseMillis = make(map[string]int64, len(a.Phases))
			for _, p := range a.Phases {
				info.PhaseMillis[p.Phase] += p.Duration.Milliseconds()
			}
		}
		attempts = append(attempts, info)
	}

	return &Report{
		ReportID:       uuid.New().String(),
		PageURL:        b.pageURL,
		Timestamp:      time.Now().Add(-res.Duration),
		Duration:       res.Duration.Milliseconds(),
		Outcome:        string(res.Outcome),
		Target:         res.Target,
		Attempts:       attempts,
		PointsReturned: res.PointsReturned,
		PointsClicked:  res.PointsClicked,
		SolvedPoints:   res.SolvedPoints,
		Metadata:       b.metadata,
	}
}

func reportJSON(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// SaveToFile saves the report to a JSON file
func (r *Report) SaveToFile(filepath string) error {
	data, err := reportJSON(r)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", filepath, err)
	}

	return nil
}

// SaveToDir saves the report into dir with a timestamped filename and
// returns the path.
func (r *Report) SaveToDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir %s: %w", dir, err)
	}

	filename := fmt.Sprintf("solve_%s_%s.json",
		time.Now().Format("20060102_150405"),
		r.ReportID[:8],
	)
	path := filepath.Join(dir, filename)

	if err := r.SaveToFile(path); err != nil {
		return "", err
	}
	return path, nil
}
