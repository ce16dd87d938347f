// Package status holds the externally visible results of sync passes and
// persists the report of the last pass.
package status

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

//go:generate mockgen -destination=mocks/mock_report_persistence.go -package=mocks -source=persistence.go ReportPersistence

const (
	// ReportFileName is the name of the last pass report file
	ReportFileName = "last-pass.json"
)

// ReportPersistence stores the report of the most recent pass
type ReportPersistence interface {
	// SaveReport replaces the stored report
	SaveReport(ctx context.Context, report *PassReport) error

	// LoadReport returns the stored report, or nil when none was saved yet
	LoadReport(ctx context.Context) (*PassReport, error)
}

type fileReportPersistence struct {
	basePath string
}

// NewFileReportPersistence stores the report as JSON under basePath
func NewFileReportPersistence(basePath string) ReportPersistence {
	return &fileReportPersistence{
		basePath: basePath,
	}
}

// SaveReport writes to a temporary file and renames it into place so a
// reader never sees a partial report.
func (f *fileReportPersistence) SaveReport(_ context.Context, report *PassReport) error {
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pass report: %w", err)
	}

	filePath := filepath.Join(f.basePath, ReportFileName)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary report file: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename report file: %w", err)
	}

	return nil
}

// LoadReport implements ReportPersistence
func (f *fileReportPersistence) LoadReport(_ context.Context) (*PassReport, error) {
	// #nosec G304 -- the path is built from the configured directory
	data, err := os.ReadFile(filepath.Join(f.basePath, ReportFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report PassReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pass report: %w", err)
	}
	return &report, nil
}
