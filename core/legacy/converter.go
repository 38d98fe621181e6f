// Package legacy implements the story-by-story conversion strategy. It
// iterates stories in definition order and creates every element whose
// anchor node belongs to the story, with no classification cascade and no
// duplicate suppression. The integration service uses it both as a
// standalone mode and as the hybrid fallback target.
package legacy

import (
	"fmt"
	"time"

	"github.com/structweave/stb2ifc/core/convert"
	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/core/relate"
	"github.com/structweave/stb2ifc/internal/logging"
)

// Builder is the output-side collaborator the legacy converter needs.
type Builder interface {
	convert.Builder
	relate.RelationshipBuilder
}

// Converter is the story-centric converter. Stateless between runs.
type Converter struct {
	builder Builder
}

// NewConverter returns a legacy converter over builder.
func NewConverter(builder Builder) *Converter {
	return &Converter{builder: builder}
}

// Convert walks stories in definition order, creating each story and then
// every element whose anchor node (or explicit floor attribute) names it.
// Elements claimed by no story are skipped with a warning. Element-level
// creation failures are counted; a missing builder creator fails only the
// affected elements.
func (c *Converter) Convert(
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	axes []model.Axis,
) (*model.ConversionResult, error) {
	started := time.Now()
	result := model.NewConversionResult()

	if len(stories) == 0 {
		return result, fmt.Errorf("no stories defined")
	}

	for _, storyDef := range stories {
		handle, err := c.builder.CreateStory(storyDef)
		if err != nil {
			return result, fmt.Errorf("story %s: %w", storyDef.Name, err)
		}
		result.CreatedStories[storyDef.Name] = handle
	}

	for _, storyDef := range stories {
		storyElements := make([]model.BuiltElement, 0)

		for _, elementType := range model.ElementTypes() {
			creator := c.builder.Creator(elementType)

			for _, def := range elements[elementType] {
				if storyFor(def, nodeStoryMap) != storyDef.Name {
					continue
				}
				result.Statistics.TotalElements++

				if creator == nil {
					result.Statistics.FailedElements++
					result.Warnings = append(result.Warnings,
						fmt.Sprintf("no creator for %s %s", elementType, def.ID))
					continue
				}

				built, err := creator.Create(def)
				if err != nil {
					result.Statistics.FailedElements++
					result.Warnings = append(result.Warnings,
						fmt.Sprintf("creating %s %s: %v", elementType, def.ID, err))
					continue
				}

				record := &model.ElementRecord{
					ElementID:   def.ID,
					ElementType: elementType,
					StoryName:   storyDef.Name,
					Definition:  def,
					CreatedAt:   time.Now(),
					Confidence:  model.ConfidenceFloorAttribute,
					Built:       built,
				}
				result.CreatedElements = append(result.CreatedElements, record)
				result.Statistics.ElementTypeCounts[elementType]++
				storyElements = append(storyElements, built)
			}
		}

		if len(storyElements) > 0 {
			rel, err := c.builder.CreateRelationship(result.CreatedStories[storyDef.Name], storyElements)
			if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("relationship for story %s: %v", storyDef.Name, err))
			} else {
				result.SpatialRelationships = append(result.SpatialRelationships, rel)
			}
		}
	}

	// Elements no story claimed.
	claimed := make(map[string]bool, len(stories))
	for _, s := range stories {
		claimed[s.Name] = true
	}
	for _, elementType := range model.ElementTypes() {
		for _, def := range elements[elementType] {
			story := storyFor(def, nodeStoryMap)
			if story == "" || !claimed[story] {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("element %s (%s) matches no story", def.ID, elementType))
			}
		}
	}

	result.Statistics.CreatedElements = len(result.CreatedElements)
	result.Statistics.ProcessingTime = time.Since(started)
	logging.ConversionEvent("legacy_complete", string(model.ModeLegacy),
		result.Statistics.CreatedElements, result.Statistics.ProcessingTime)
	return result, nil
}

// storyFor resolves an element to a story the legacy way: the explicit
// floor attribute when present, otherwise whichever story the first
// populated node reference maps to.
func storyFor(def *model.ElementDefinition, nodeStoryMap map[string]string) string {
	if def.FloorName != "" {
		return def.FloorName
	}
	candidates := []string{def.StartNodeID, def.BottomNodeID, def.PrimaryNodeID}
	if len(def.NodeIDs) > 0 {
		candidates = append(candidates, def.NodeIDs[0])
	}
	for _, nodeID := range candidates {
		if nodeID == "" {
			continue
		}
		if story, ok := nodeStoryMap[nodeID]; ok {
			return story
		}
	}
	return ""
}
