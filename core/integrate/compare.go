package integrate

import (
	"time"

	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/internal/logging"
)

// Recommendation thresholds for the performance comparison, in percent.
const (
	strongImprovementPct = 30.0
	mildImprovementPct   = 10.0
)

// ComparisonResult reports one legacy versus element-centric comparison run.
type ComparisonResult struct {
	LegacyTime               time.Duration        `json:"legacy_time"`
	ElementCentricTime       time.Duration        `json:"element_centric_time"`
	LegacyElementCount       int                  `json:"legacy_element_count"`
	ElementCentricCount      int                  `json:"element_centric_element_count"`
	LegacyDuplicates         int                  `json:"legacy_duplicate_count"`
	ElementCentricDuplicates int                  `json:"element_centric_duplicate_count"`
	ImprovementPct           float64              `json:"improvement_pct"`
	Recommendation           model.ConversionMode `json:"recommendation"`
}

// ComparePerformance runs both the legacy and the element-centric
// strategies over the same input, measures elapsed time and element and
// duplicate counts for each, and recommends a mode: a better than 30% time
// improvement with zero duplicates recommends ElementCentric, better than
// 10% recommends Hybrid, anything else Legacy.
func (s *Service) ComparePerformance(
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	builder Builder,
) (*ComparisonResult, error) {
	logging.Info("performance comparison started")

	legacyStart := time.Now()
	legacyResult, err := s.runLegacy(stories, elements, nodeStoryMap, builder, nil)
	if err != nil {
		return nil, err
	}
	legacyTime := time.Since(legacyStart)

	elementStart := time.Now()
	elementResult, err := s.runElementCentric(stories, elements, nodeStoryMap, builder, nil)
	if err != nil {
		return nil, err
	}
	elementTime := time.Since(elementStart)

	improvement := 0.0
	if legacyTime > 0 {
		improvement = float64(legacyTime-elementTime) / float64(legacyTime) * 100
	}

	comparison := &ComparisonResult{
		LegacyTime:               legacyTime,
		ElementCentricTime:       elementTime,
		LegacyElementCount:       len(legacyResult.CreatedElements),
		ElementCentricCount:      elementResult.Statistics.CreatedElements,
		LegacyDuplicates:         legacyResult.Statistics.DuplicateElements,
		ElementCentricDuplicates: elementResult.Statistics.DuplicateElements,
		ImprovementPct:           improvement,
		Recommendation:           Recommend(improvement, elementResult.Statistics.DuplicateElements),
	}
	s.comparisons = append(s.comparisons, *comparison)

	logging.Info("performance comparison complete",
		"improvement_pct", improvement,
		"recommendation", comparison.Recommendation)
	return comparison, nil
}

// Recommend applies the fixed recommendation rule to a measured improvement
// percentage and the element-centric duplicate count.
func Recommend(improvementPct float64, elementCentricDuplicates int) model.ConversionMode {
	switch {
	case improvementPct > strongImprovementPct && elementCentricDuplicates == 0:
		return model.ModeElementCentric
	case improvementPct > mildImprovementPct:
		return model.ModeHybrid
	default:
		return model.ModeLegacy
	}
}

// Comparisons returns every recorded performance comparison.
func (s *Service) Comparisons() []ComparisonResult {
	return s.comparisons
}
