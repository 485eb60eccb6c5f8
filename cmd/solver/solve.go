package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clicksolve/captcha-agent/internal/agent"
	"github.com/clicksolve/captcha-agent/internal/db"
	"github.com/clicksolve/captcha-agent/internal/ocr"
	"github.com/clicksolve/captcha-agent/internal/reporter"
	"github.com/clicksolve/captcha-agent/internal/twocaptcha"
)

var (
	// Solve command flags
	solveURL    string
	outputDir   string
	headless    bool
	target      string
	maxWait     int
	maxAttempts int
	uploadS3    bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve the captcha on a page",
	Long: `Navigate to the given URL, capture the click-coordinate captcha,
submit it to the remote solving service, verify and click the answer, and
confirm the captcha is gone. Writes a JSON report and an annotated
screenshot into the output directory.`,
	RunE: runSolve,
}

func init() {
	// Define flags for solve command
	solveCmd.Flags().StringVarP(&solveURL, "url", "u", "", "Page URL carrying the captcha (required)")
	solveCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for reports and artifacts")
	solveCmd.Flags().BoolVar(&headless, "headless", true, "Run browser in headless mode")
	solveCmd.Flags().StringVarP(&target, "target", "t", "", "Digit to click (auto-extracted from the page when empty)")
	solveCmd.Flags().IntVarP(&maxWait, "max-wait", "w", 0, "Maximum seconds to wait for the solving service")
	solveCmd.Flags().IntVarP(&maxAttempts, "max-attempts", "a", 0, "Maximum full pipeline attempts")
	solveCmd.Flags().BoolVar(&uploadS3, "upload", false, "Upload report and artifacts to S3")

	// Mark required flags
	solveCmd.MarkFlagRequired("url")
}

func runSolve(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}
	applySolveFlags(config)

	if config.SolverAPIKey == "" {
		return fmt.Errorf("no solving-service API key configured (set SOLVER_API_KEY)")
	}

	if err := EnsureOutputDir(config.OutputDir); err != nil {
		return err
	}

	fmt.Printf("Captcha Agent v%s\n", version)
	fmt.Printf("  URL:          %s\n", solveURL)
	fmt.Printf("  Output:       %s\n", config.OutputDir)
	fmt.Printf("  Max attempts: %d\n", config.MaxAttempts)
	fmt.Println()

	history, err := db.New(config.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer history.Close()

	solveID := uuid.New().String()
	if err := history.CreateSolve(solveID, solveURL); err != nil {
		return fmt.Errorf("failed to record solve start: %w", err)
	}

	bm, err := agent.NewBrowserManager(config.Headless)
	if err != nil {
		return fmt.Errorf("failed to create browser manager: %w", err)
	}
	defer bm.Close()

	if err := bm.Navigate(solveURL, 30*time.Second); err != nil {
		return fmt.Errorf("failed to load page: %w", err)
	}

	client := twocaptcha.NewClient(twocaptcha.Config{
		APIKey:  config.SolverAPIKey,
		BaseURL: config.SolverBaseURL,
	})

	gate := ocr.NewDigitGate(buildVisionEngine(config))

	orch := agent.NewOrchestrator(bm, client, gate, agent.Config{
		MaxAttempts: config.MaxAttempts,
		MaxWait:     config.MaxWait,
		Target:      target,
	})

	res, solveErr := orch.Solve(context.Background())

	report := buildReport(config, res)
	if recordErr := recordSolve(history, solveID, res, report); recordErr != nil {
		log.Printf("[Solver] Failed to record solve history: %v", recordErr)
	}

	if solveErr != nil {
		return fmt.Errorf("solve failed: %w", solveErr)
	}

	fmt.Printf("\nOutcome: %s (%d/%d points clicked over %d attempts in %v)\n",
		res.Outcome, res.PointsClicked, res.PointsReturned, len(res.Attempts), res.Duration.Round(time.Millisecond))
	return nil
}

// buildVisionEngine returns nil when no vision key is configured; the gate
// then passes everything through.
func buildVisionEngine(config *Config) ocr.Engine {
	if config.VisionAPIKey == "" {
		log.Printf("[Solver] No vision API key, OCR verification disabled")
		return nil
	}
	engine, err := ocr.NewVisionEngine(config.VisionAPIKey, config.VisionModel)
	if err != nil {
		log.Printf("[Solver] Vision OCR unavailable: %v", err)
		return nil
	}
	return engine
}

// buildReport writes the JSON report plus the capture and annotated
// screenshots, and optionally uploads everything to S3.
func buildReport(config *Config, res *agent.Result) *reporter.Report {
	builder := reporter.NewBuilder(solveURL)
	builder.AddMetadata("version", version)
	report := builder.Build(res)
	report.Artifacts = &reporter.Artifacts{}

	var capture, annotated []byte
	if res.LastCapture != nil {
		capture = res.LastCapture.Data
		path := filepath.Join(config.OutputDir, fmt.Sprintf("capture_%s.png", report.ReportID[:8]))
		if err := os.WriteFile(path, capture, 0644); err != nil {
			log.Printf("[Solver] Failed to write capture: %v", err)
		} else {
			report.Artifacts.CapturePath = path
		}

		if len(res.SolvedPoints) > 0 {
			var err error
			annotated, err = reporter.Annotate(capture, res.SolvedPoints)
			if err != nil {
				log.Printf("[Solver] Failed to annotate capture: %v", err)
			} else {
				path := filepath.Join(config.OutputDir, fmt.Sprintf("annotated_%s.png", report.ReportID[:8]))
				if err := os.WriteFile(path, annotated, 0644); err != nil {
					log.Printf("[Solver] Failed to write annotated capture: %v", err)
				} else {
					report.Artifacts.AnnotatedPath = path
				}
			}
		}
	}

	if uploadS3 {
		uploader, err := reporter.NewS3Uploader(config.S3Bucket, config.S3Region)
		if err != nil {
			log.Printf("[Solver] S3 upload unavailable: %v", err)
		} else if err := uploader.UploadReportWithArtifacts(context.Background(), report, capture, annotated); err != nil {
			log.Printf("[Solver] S3 upload failed: %v", err)
		} else {
			fmt.Printf("Report uploaded: %s\n", uploader.GetReportURL(report.ReportID))
		}
	}

	if path, err := report.SaveToDir(config.OutputDir); err != nil {
		log.Printf("[Solver] Failed to save report: %v", err)
	} else {
		fmt.Printf("Report saved: %s\n", path)
	}

	return report
}

func recordSolve(history *db.Database, solveID string, res *agent.Result, report *reporter.Report) error {
	return history.CompleteSolve(solveID, db.SolveRecord{
		Outcome:        string(res.Outcome),
		Target:         res.Target,
		Attempts:       len(res.Attempts),
		PointsReturned: res.PointsReturned,
		PointsClicked:  res.PointsClicked,
		Duration:       int(res.Duration.Milliseconds()),
		ReportID:       report.ReportID,
	}, report)
}

func applySolveFlags(config *Config) {
	if outputDir != "" {
		config.OutputDir = outputDir
	}
	config.Headless = headless
	if maxWait > 0 {
		config.MaxWait = time.Duration(maxWait) * time.Second
	}
	if maxAttempts > 0 {
		config.MaxAttempts = maxAttempts
	}
}
