package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/boq-price-match/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrInvalidItem     = errors.New("invalid price item")
	ErrInvalidPattern  = errors.New("invalid learned pattern")
	ErrInvalidJob      = errors.New("invalid match job")
	ErrDuplicateItemID = errors.New("duplicate price item id")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validatePriceItems(items []model.PriceItem) error {
	seen := make(map[string]struct{}, len(items))
	for i := range items {
		it := &items[i]
		if strings.TrimSpace(it.ID) == "" {
			return fmt.Errorf("%w at index %d: missing ID", ErrInvalidItem, i)
		}
		if strings.TrimSpace(it.Description) == "" {
			return fmt.Errorf("%w at index %d: missing description", ErrInvalidItem, i)
		}
		if it.Rate < 0 {
			return fmt.Errorf("%w at index %d: negative rate", ErrInvalidItem, i)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateItemID, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

func validatePattern(p *model.LearnedPattern) error {
	if p == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if strings.TrimSpace(p.QuerySignature) == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidPattern)
	}
	if strings.TrimSpace(p.ChosenItemCode) == "" {
		return fmt.Errorf("%w: missing item code", ErrInvalidPattern)
	}
	if p.ConfidenceAtCreation < 0 || p.ConfidenceAtCreation > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidPattern)
	}
	return nil
}

func validateJob(job *model.MatchJob) error {
	if job == nil {
		return fmt.Errorf("%w: job", ErrNilParameter)
	}
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidJob)
	}
	switch job.Status {
	case model.JobPending, model.JobParsing, model.JobMatching, model.JobCompleted, model.JobFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJob, job.Status)
	}
	if job.Processed < 0 || job.Total < 0 || job.Processed > job.Total {
		return fmt.Errorf("%w: processed %d of %d", ErrInvalidJob, job.Processed, job.Total)
	}
	return nil
}
