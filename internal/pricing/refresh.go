package pricing

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Target is one product to refresh.
type Target struct {
	ID    string `yaml:"id" json:"id"`
	Query string `yaml:"query" json:"query"`
}

type targetsFile struct {
	Products []Target `yaml:"products"`
}

// LoadTargets reads a YAML file of the form:
//
//	products:
//	  - id: "6"
//	    query: RTX 4090
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	return ParseTargets(data)
}

func ParseTargets(data []byte) ([]Target, error) {
	var file targetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse targets file: %w", err)
	}

	for i, t := range file.Products {
		if t.ID == "" || t.Query == "" {
			return nil, fmt.Errorf("target %d: id and query are required", i)
		}
	}
	return file.Products, nil
}

// RefreshOutcome pairs a target with its report, or with the error that
// prevented the update.
type RefreshOutcome struct {
	Target Target
	Report *UpdateReport
	Err    error
}

// RefreshAll updates the targets one after another, pausing between them.
// It stops early when ctx is cancelled and returns the outcomes so far.
func (s *Service) RefreshAll(ctx context.Context, targets []Target, pause time.Duration) ([]RefreshOutcome, error) {
	outcomes := make([]RefreshOutcome, 0, len(targets))

	for i, target := range targets {
		if i > 0 && pause > 0 {
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return outcomes, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		report, err := s.UpdatePrices(ctx, target.ID, target.Query)
		if err != nil {
			s.logger.Error("refresh failed", "product_id", target.ID, "query", target.Query, "error", err)
		}
		outcomes = append(outcomes, RefreshOutcome{Target: target, Report: report, Err: err})
	}

	return outcomes, nil
}
