package reporter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader handles uploading solve artifacts to S3
type S3Uploader struct {
	client     *s3.Client
	bucketName string
	region     string
}

// NewS3Uploader creates a new S3 uploader
func NewS3Uploader(bucketName, region string) (*S3Uploader, error) {
	if bucketName == "" {
		bucketName = os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, fmt.Errorf("no S3 bucket configured")
		}
	}

	if region == "" {
		region = os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1" // Default
		}
	}

	// Load AWS config
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &S3Uploader{
		client:     client,
		bucketName: bucketName,
		region:     region,
	}, nil
}

// UploadBytes uploads raw bytes to S3 under the given key
func (u *S3Uploader) UploadBytes(ctx context.Context, data []byte, s3Key, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return u.objectURL(s3Key), nil
}

// UploadFile uploads a file to S3
func (u *S3Uploader) UploadFile(ctx context.Context, path, s3Key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return u.UploadBytes(ctx, data, s3Key, contentTypeFor(path))
}

// UploadReportWithArtifacts uploads the report JSON plus the capture and
// annotated screenshots, filling in the S3 URLs on the report as it goes.
func (u *S3Uploader) UploadReportWithArtifacts(ctx context.Context, report *Report, capture, annotated []byte) error {
	if report.Artifacts == nil {
		report.Artifacts = &Artifacts{}
	}

	if len(capture) > 0 {
		url, err := u.UploadBytes(ctx, capture,
			fmt.Sprintf("solves/%s/capture.png", report.ReportID), "image/png")
		if err != nil {
			return fmt.Errorf("failed to upload capture: %w", err)
		}
		report.Artifacts.CaptureS3URL = url
	}

	if len(annotated) > 0 {
		url, err := u.UploadBytes(ctx, annotated,
			fmt.Sprintf("solves/%s/annotated.png", report.ReportID), "image/png")
		if err != nil {
			return fmt.Errorf("failed to upload annotated image: %w", err)
		}
		report.Artifacts.AnnotatedS3URL = url
	}

	data, err := reportJSON(report)
	if err != nil {
		return err
	}
	_, err = u.UploadBytes(ctx, data,
		fmt.Sprintf("solves/%s/report.json", report.ReportID), "application/json")
	if err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}

	return nil
}

// GetReportURL returns the S3 URL for a report
func (u *S3Uploader) GetReportURL(reportID string) string {
	return u.objectURL(fmt.Sprintf("solves/%s/report.json", reportID))
}

func (u *S3Uploader) objectURL(s3Key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		u.bucketName,
		u.region,
		s3Key,
	)
}

// contentTypeFor determines content type from file extension
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
