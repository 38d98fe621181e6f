// Package relate groups created elements by building story and validates
// the referential integrity of the resulting spatial structure.
package relate

import (
	"fmt"
	"sort"

	"github.com/structweave/stb2ifc/core/errors"
	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/internal/logging"
)

// RelationshipBuilder is the output-side collaborator that materializes one
// containment relationship per story.
type RelationshipBuilder interface {
	// CreateRelationship creates a single spatial containment relationship
	// referencing every element in the story.
	CreateRelationship(story model.StoryHandle, elements []model.BuiltElement) (model.Relationship, error)
}

// StoryStatistics summarizes the registered elements of one story.
type StoryStatistics struct {
	StoryName         string                    `json:"story_name"`
	ElementCount      int                       `json:"element_count"`
	ElementTypes      map[model.ElementType]int `json:"element_types"`
	ConfidenceAverage float64                   `json:"confidence_average"`
}

// Manager tracks which story every created element belongs to and turns the
// grouping into one containment relationship per story. One relationship
// references many elements; this batching keeps the relationship count at
// one per non-empty story instead of one per element.
type Manager struct {
	builder RelationshipBuilder

	storyElements map[string][]*model.ElementRecord
	storyOrder    []string

	registeredIDs     map[string]int
	materializedNames map[string]struct{}
	relationships     []model.Relationship
}

// NewManager returns a manager that materializes relationships through the
// given builder.
func NewManager(builder RelationshipBuilder) *Manager {
	return &Manager{
		builder:           builder,
		storyElements:     make(map[string][]*model.ElementRecord),
		registeredIDs:     make(map[string]int),
		materializedNames: make(map[string]struct{}),
	}
}

// Register records an element as belonging to a story. Re-registration of
// an already-registered element id is rejected with a warning error, not a
// failure; the duplicate is still counted for validation.
func (m *Manager) Register(record *model.ElementRecord, storyName string) error {
	m.registeredIDs[record.ElementID]++
	if m.registeredIDs[record.ElementID] > 1 {
		logging.Warn("duplicate element registration", "element_id", record.ElementID, "story", storyName)
		return &errors.DuplicateRegistrationError{
			ElementID: record.ElementID,
			StoryName: storyName,
		}
	}

	if _, seen := m.storyElements[storyName]; !seen {
		m.storyOrder = append(m.storyOrder, storyName)
	}
	m.storyElements[storyName] = append(m.storyElements[storyName], record)
	return nil
}

// Materialize groups registered elements by story and requests one
// relationship per non-empty group whose story has an output-side handle.
// Stories without a handle are skipped here and surface as missing stories
// in Validate.
func (m *Manager) Materialize(storyHandles map[string]model.StoryHandle) ([]model.Relationship, error) {
	relationships := make([]model.Relationship, 0, len(m.storyOrder))

	for _, storyName := range m.storyOrder {
		records := m.storyElements[storyName]
		if len(records) == 0 {
			continue
		}

		handle, ok := storyHandles[storyName]
		if !ok {
			logging.Warn("no story handle for registered story", "story", storyName)
			continue
		}
		m.materializedNames[storyName] = struct{}{}

		elements := make([]model.BuiltElement, 0, len(records))
		for _, rec := range records {
			if rec.Built != nil {
				elements = append(elements, rec.Built)
			}
		}
		if len(elements) == 0 {
			logging.Warn("story has no built elements", "story", storyName)
			continue
		}

		rel, err := m.builder.CreateRelationship(handle, elements)
		if err != nil {
			logging.Warn("relationship creation failed", "story", storyName, "error", err)
			continue
		}
		relationships = append(relationships, rel)
		logging.Debug("relationship created", "story", storyName, "elements", len(elements))
	}

	m.relationships = relationships
	return relationships, nil
}

// Validate computes three integrity classes: orphaned elements (assigned to
// a story never materialized), duplicate relationship ids (an element
// registered more than once), and missing stories (registered but never
// realized). Validity requires all three sets empty.
func (m *Manager) Validate() model.ValidationResult {
	result := model.ValidationResult{}

	for _, storyName := range m.storyOrder {
		if _, ok := m.materializedNames[storyName]; ok {
			continue
		}
		result.MissingStories = append(result.MissingStories, storyName)
		for _, rec := range m.storyElements[storyName] {
			result.OrphanedElements = append(result.OrphanedElements, rec.ElementID)
		}
	}

	duplicates := make([]string, 0)
	for id, count := range m.registeredIDs {
		if count > 1 {
			duplicates = append(duplicates, id)
		}
	}
	sort.Strings(duplicates)
	result.DuplicateRelationships = duplicates

	total := 0
	for _, records := range m.storyElements {
		total += len(records)
	}
	if total == 0 {
		result.Warnings = append(result.Warnings, "no elements registered")
	}

	lowConfidence := 0
	for _, records := range m.storyElements {
		for _, rec := range records {
			if rec.Confidence < 0.7 {
				lowConfidence++
			}
		}
	}
	if lowConfidence > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("low-confidence elements: %d", lowConfidence))
	}

	result.Valid = len(result.OrphanedElements) == 0 &&
		len(result.DuplicateRelationships) == 0 &&
		len(result.MissingStories) == 0
	return result
}

// ElementsByStory returns the registered elements of one story.
func (m *Manager) ElementsByStory(storyName string) []*model.ElementRecord {
	return m.storyElements[storyName]
}

// StoryNames returns the registered story names in first-seen order.
func (m *Manager) StoryNames() []string {
	return m.storyOrder
}

// Statistics returns per-story registration statistics.
func (m *Manager) Statistics() map[string]StoryStatistics {
	stats := make(map[string]StoryStatistics, len(m.storyOrder))
	for _, storyName := range m.storyOrder {
		records := m.storyElements[storyName]
		if len(records) == 0 {
			continue
		}
		s := StoryStatistics{
			StoryName:    storyName,
			ElementCount: len(records),
			ElementTypes: make(map[model.ElementType]int),
		}
		confidenceSum := 0.0
		for _, rec := range records {
			s.ElementTypes[rec.ElementType]++
			confidenceSum += rec.Confidence
		}
		s.ConfidenceAverage = confidenceSum / float64(len(records))
		stats[storyName] = s
	}
	return stats
}
