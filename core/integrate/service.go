// Package integrate selects and runs one of the legacy, element-centric,
// hybrid, or auto conversion strategies, applies a quality gate to hybrid
// runs, performs fallback, and records comparative performance.
package integrate

import (
	"fmt"
	"time"

	"github.com/structweave/stb2ifc/core/convert"
	"github.com/structweave/stb2ifc/core/errors"
	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/core/relate"
	"github.com/structweave/stb2ifc/internal/logging"
)

// Auto-mode selection thresholds over the input scale.
const (
	autoLargeElementCount = 1000
	autoLargeStoryCount   = 10
	autoSmallElementCount = 100
	autoSmallStoryCount   = 3
)

// Builder is the full output-side collaborator the element-centric pipeline
// needs: creators, story materialization, and relationship creation.
type Builder interface {
	convert.Builder
	relate.RelationshipBuilder
}

// AxisBuilder is optionally implemented by builders that materialize grid
// axes as annotation entities.
type AxisBuilder interface {
	CreateAxis(axis model.Axis) error
}

// LegacyConverter is the external story-by-story converter used by the
// legacy mode and as the fallback target. No classification or dedup logic
// applies inside it.
type LegacyConverter interface {
	Convert(stories []model.StoryDefinition,
		elements map[model.ElementType][]*model.ElementDefinition,
		nodeStoryMap map[string]string,
		axes []model.Axis) (*model.ConversionResult, error)
}

// RunRecord is one completed conversion in the service's history.
type RunRecord struct {
	Mode         model.ConversionMode `json:"mode"`
	Duration     time.Duration        `json:"duration"`
	ElementCount int                  `json:"element_count"`
	FellBack     bool                 `json:"fell_back"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Recorder persists run records. Implemented by core/history.
type Recorder interface {
	Record(rec RunRecord) error
}

// Statistics summarizes the service's conversion history.
type Statistics struct {
	TotalConversions int                          `json:"total_conversions"`
	FallbackCount    int                          `json:"fallback_count"`
	FallbackRate     float64                      `json:"fallback_rate"`
	AverageDuration  time.Duration                `json:"average_duration"`
	ModeUsage        map[model.ConversionMode]int `json:"mode_usage"`
}

// Service is the integration entry point. It is not safe for concurrent
// conversions; the pipeline is single-threaded by design.
type Service struct {
	config        Config
	legacy        LegacyConverter
	recorder      Recorder
	fallbackCount int
	history       []RunRecord
	comparisons   []ComparisonResult
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder persists every run record through rec.
func WithRecorder(rec Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = rec
	}
}

// NewService returns a service running conversions under config, with
// legacy as the story-by-story collaborator.
func NewService(config Config, legacy LegacyConverter, opts ...ServiceOption) *Service {
	s := &Service{
		config: config,
		legacy: legacy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Convert runs one conversion under the configured mode. A ConversionResult
// is always returned, even on fatal failure (with empty element lists and
// Errors populated). The returned error is non-nil when no strategy produced
// an accepted result: an unsupported mode, a fatal legacy failure, a hybrid
// exception with fallback disabled, or a hybrid run whose fallback path
// itself failed.
func (s *Service) Convert(
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	builder Builder,
	axes []model.Axis,
) (*model.ConversionResult, error) {
	started := time.Now()
	mode := s.config.Mode
	fellBackBefore := s.fallbackCount

	result, err := s.dispatch(mode, stories, elements, nodeStoryMap, builder, axes)

	// An exception outside hybrid's own fallback handling still falls back
	// when enabled. Hybrid reports a fallback failure as final.
	if err != nil && s.config.EnableFallback && mode != model.ModeLegacy && mode != model.ModeHybrid {
		s.fallbackCount++
		logging.FallbackEvent(err.Error(), s.fallbackCount, "mode", mode)
		fallbackResult, fallbackErr := s.runLegacy(stories, elements, nodeStoryMap, builder, axes)
		if fallbackErr != nil {
			result = failedResult(err, fallbackErr)
			err = &errors.IntegrationError{Mode: string(mode), Err: err, FallbackErr: fallbackErr}
		} else {
			result, err = fallbackResult, nil
		}
	}

	record := RunRecord{
		Mode:         mode,
		Duration:     time.Since(started),
		ElementCount: countElements(elements),
		FellBack:     s.fallbackCount > fellBackBefore,
		Timestamp:    started,
	}
	s.history = append(s.history, record)
	if s.recorder != nil {
		if recErr := s.recorder.Record(record); recErr != nil {
			logging.Warn("run record not persisted", "error", recErr)
		}
	}

	return result, err
}

// dispatch routes a conversion to the handler for one mode. Hybrid and Auto
// compose the other handlers rather than duplicating their logic.
func (s *Service) dispatch(
	mode model.ConversionMode,
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	builder Builder,
	axes []model.Axis,
) (*model.ConversionResult, error) {
	switch mode {
	case model.ModeLegacy:
		return s.runLegacy(stories, elements, nodeStoryMap, builder, axes)
	case model.ModeElementCentric:
		return s.runElementCentric(stories, elements, nodeStoryMap, builder, axes)
	case model.ModeHybrid:
		return s.runHybrid(stories, elements, nodeStoryMap, builder, axes)
	case model.ModeAuto:
		return s.runAuto(stories, elements, nodeStoryMap, builder, axes)
	default:
		result := model.NewConversionResult()
		err := fmt.Errorf("%w: %q", errors.ErrUnsupportedMode, mode)
		result.Errors = append(result.Errors, err.Error())
		return result, err
	}
}

// runLegacy delegates entirely to the story-by-story converter.
func (s *Service) runLegacy(
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	builder Builder,
	axes []model.Axis,
) (*model.ConversionResult, error) {
	logging.Info("running legacy conversion", "stories", len(stories))
	result, err := s.legacy.Convert(stories, elements, nodeStoryMap, axes)
	if err != nil {
		wrapped := fmt.Errorf("legacy conversion: %w", err)
		failed := model.NewConversionResult()
		failed.Errors = append(failed.Errors, wrapped.Error())
		return failed, wrapped
	}
	return result, nil
}

// runElementCentric runs the full classification pipeline with a fresh
// converter and relationship manager per run.
func (s *Service) runElementCentric(
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	builder Builder,
	axes []model.Axis,
) (*model.ConversionResult, error) {
	logging.Info("running element-centric conversion",
		"stories", len(stories), "element_types", len(elements))

	if ab, ok := builder.(AxisBuilder); ok {
		for _, axis := range axes {
			if err := ab.CreateAxis(axis); err != nil {
				logging.Warn("axis creation failed", "axis", axis.Name, "error", err)
			}
		}
	}

	manager := relate.NewManager(builder)
	converter := convert.New(nodeStoryMap, builder, convert.WithRelationshipManager(manager))

	result := converter.Convert(stories, elements)
	if len(result.Errors) > 0 {
		return result, fmt.Errorf("%w: %s", errors.ErrIntegration, result.Errors[0])
	}
	return result, nil
}

// runHybrid runs the element-centric pipeline and falls back to legacy when
// it raises or fails the quality gate. The two attempts are strictly
// sequential: the fallback observes the primary outcome first.
func (s *Service) runHybrid(
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	builder Builder,
	axes []model.Axis,
) (*model.ConversionResult, error) {
	logging.Info("running hybrid conversion")

	result, err := s.runElementCentric(stories, elements, nodeStoryMap, builder, axes)
	var gateReason string
	if err == nil {
		if reason, ok := s.checkQuality(result); !ok {
			gateReason = reason
			err = fmt.Errorf("%w: quality gate: %s", errors.ErrIntegration, reason)
		}
	}
	if err == nil {
		logging.Info("element-centric result accepted by quality gate")
		return result, nil
	}

	if !s.config.EnableFallback {
		// An element-centric exception with fallback disabled is fatal;
		// only a quality-gate rejection of an otherwise completed run is
		// downgraded to a warning.
		if gateReason == "" {
			return result, err
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("quality gate rejected result, fallback disabled: %s", gateReason))
		return result, nil
	}

	s.fallbackCount++
	logging.FallbackEvent(err.Error(), s.fallbackCount, "mode", model.ModeHybrid)

	fallbackResult, fallbackErr := s.runLegacy(stories, elements, nodeStoryMap, builder, axes)
	if fallbackErr != nil {
		ierr := &errors.IntegrationError{Mode: string(model.ModeHybrid), Err: err, FallbackErr: fallbackErr}
		return failedResult(err, fallbackErr), ierr
	}
	return fallbackResult, nil
}

// runAuto inspects the input scale, deterministically picks one of the
// other modes, and re-enters the state machine with it. The configured mode
// is restored after the call completes, success or failure.
func (s *Service) runAuto(
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	builder Builder,
	axes []model.Axis,
) (*model.ConversionResult, error) {
	selected := SelectMode(countElements(elements), len(stories))
	logging.Info("auto mode selection", "selected", selected,
		"elements", countElements(elements), "stories", len(stories))

	original := s.config.Mode
	s.config.Mode = selected
	defer func() { s.config.Mode = original }()

	return s.dispatch(selected, stories, elements, nodeStoryMap, builder, axes)
}

// SelectMode picks a conversion mode from the input scale using fixed
// thresholds: large inputs go element-centric, small ones legacy, the rest
// hybrid.
func SelectMode(elementCount, storyCount int) model.ConversionMode {
	switch {
	case elementCount > autoLargeElementCount || storyCount > autoLargeStoryCount:
		return model.ModeElementCentric
	case elementCount < autoSmallElementCount && storyCount < autoSmallStoryCount:
		return model.ModeLegacy
	default:
		return model.ModeHybrid
	}
}

// checkQuality applies the hybrid quality gate. It fails on any failed
// element, on more duplicates than the tolerance, or when the fraction of
// elements classified by the lowest-confidence coordinate method exceeds
// 1 - ConfidenceThreshold.
func (s *Service) checkQuality(result *model.ConversionResult) (string, bool) {
	stats := result.Statistics
	if stats.FailedElements > 0 {
		return fmt.Sprintf("%d failed elements", stats.FailedElements), false
	}
	if stats.DuplicateElements > s.config.DuplicateTolerance {
		return fmt.Sprintf("%d duplicates exceed tolerance %d", stats.DuplicateElements, s.config.DuplicateTolerance), false
	}
	if stats.CreatedElements > 0 {
		lowConfidence := stats.MethodCounts[model.MethodCoordinate]
		ratio := float64(lowConfidence) / float64(stats.CreatedElements)
		if ratio > 1.0-s.config.ConfidenceThreshold {
			return fmt.Sprintf("coordinate-classified ratio %.2f exceeds limit %.2f", ratio, 1.0-s.config.ConfidenceThreshold), false
		}
	}
	return "", true
}

// FallbackCount returns how many times the service has fallen back to the
// legacy converter.
func (s *Service) FallbackCount() int {
	return s.fallbackCount
}

// History returns the service's run records, oldest first.
func (s *Service) History() []RunRecord {
	return s.history
}

// Statistics summarizes the run history.
func (s *Service) Statistics() Statistics {
	stats := Statistics{
		TotalConversions: len(s.history),
		FallbackCount:    s.fallbackCount,
		ModeUsage:        make(map[model.ConversionMode]int),
	}
	if len(s.history) == 0 {
		return stats
	}
	var total time.Duration
	for _, rec := range s.history {
		total += rec.Duration
		stats.ModeUsage[rec.Mode]++
	}
	stats.AverageDuration = total / time.Duration(len(s.history))
	stats.FallbackRate = float64(s.fallbackCount) / float64(len(s.history))
	return stats
}

// failedResult builds the always-returned result for a double failure.
func failedResult(primary, fallback error) *model.ConversionResult {
	result := model.NewConversionResult()
	result.Errors = append(result.Errors, primary.Error(), fallback.Error())
	return result
}

func countElements(elements map[model.ElementType][]*model.ElementDefinition) int {
	total := 0
	for _, defs := range elements {
		total += len(defs)
	}
	return total
}
