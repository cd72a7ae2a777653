package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
	"github.com/Raymond9734/drip-campaign-engine/internal/segment"
)

// SegmentPreview is the audience estimate shown while authoring a segment
type SegmentPreview struct {
	Count         int64                    `json:"count"`
	Sample        []models.CustomerSummary `json:"sample"`
	UnknownFields []string                 `json:"unknown_fields,omitempty"`
}

// SegmentService compiles segment definitions and runs them against the customer store
type SegmentService interface {
	Compile(def *models.SegmentDefinition, now time.Time) (*segment.QuerySpec, error)
	Execute(ctx context.Context, def *models.SegmentDefinition, now time.Time) ([]int64, error)
	Count(ctx context.Context, def *models.SegmentDefinition, now time.Time) (int64, error)
	Sample(ctx context.Context, def *models.SegmentDefinition, now time.Time, n int) ([]models.CustomerSummary, error)
	Preview(ctx context.Context, def *models.SegmentDefinition, now time.Time, n int) (*SegmentPreview, error)
}

type segmentService struct {
	customerRepo repository.CustomerRepository
	logger       *slog.Logger
}

// NewSegmentService creates a new segment service
func NewSegmentService(customerRepo repository.CustomerRepository, logger *slog.Logger) SegmentService {
	return &segmentService{
		customerRepo: customerRepo,
		logger:       logger,
	}
}

func (s *segmentService) Compile(def *models.SegmentDefinition, now time.Time) (*segment.QuerySpec, error) {
	spec, err := segment.Compile(def, now)
	if err != nil {
		return nil, err
	}
	if len(spec.UnknownFields) > 0 {
		s.logger.Warn("segment references unknown fields; treating them as always true",
			slog.Any("fields", spec.UnknownFields),
		)
	}
	return spec, nil
}

func (s *segmentService) Execute(ctx context.Context, def *models.SegmentDefinition, now time.Time) ([]int64, error) {
	spec, err := s.Compile(def, now)
	if err != nil {
		return nil, err
	}
	return s.customerRepo.FindMatching(ctx, spec)
}

func (s *segmentService) Count(ctx context.Context, def *models.SegmentDefinition, now time.Time) (int64, error) {
	spec, err := s.Compile(def, now)
	if err != nil {
		return 0, err
	}
	return s.customerRepo.CountMatching(ctx, spec)
}

func (s *segmentService) Sample(ctx context.Context, def *models.SegmentDefinition, now time.Time, n int) ([]models.CustomerSummary, error) {
	spec, err := s.Compile(def, now)
	if err != nil {
		return nil, err
	}
	return s.customerRepo.SampleMatching(ctx, spec, clampSample(n))
}

// Preview compiles once and returns the count, a sample and any unknown fields
func (s *segmentService) Preview(ctx context.Context, def *models.SegmentDefinition, now time.Time, n int) (*SegmentPreview, error) {
	spec, err := s.Compile(def, now)
	if err != nil {
		return nil, err
	}

	count, err := s.customerRepo.CountMatching(ctx, spec)
	if err != nil {
		return nil, err
	}

	sample, err := s.customerRepo.SampleMatching(ctx, spec, clampSample(n))
	if err != nil {
		return nil, err
	}

	return &SegmentPreview{
		Count:         count,
		Sample:        sample,
		UnknownFields: spec.UnknownFields,
	}, nil
}

func clampSample(n int) int {
	if n < 1 {
		return 10
	}
	if n > 100 {
		return 100
	}
	return n
}
