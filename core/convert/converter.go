// Package convert implements the element-centric conversion pipeline:
// classification of every element into a story, duplicate suppression,
// creation dispatch to the element builder, and run statistics.
package convert

import (
	"fmt"
	"sort"
	"time"

	"github.com/structweave/stb2ifc/core/analyze"
	"github.com/structweave/stb2ifc/core/errors"
	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/core/relate"
	"github.com/structweave/stb2ifc/internal/logging"
)

// Creator builds one category of output-side element.
type Creator interface {
	// Create turns a definition into a built element. It fails with a
	// creation error on malformed geometry or section references.
	Create(def *model.ElementDefinition) (model.BuiltElement, error)
}

// Builder is the output-side collaborator that supplies creators and
// materializes stories. Relationship creation is consumed separately by the
// relationship manager.
type Builder interface {
	// Creator returns the creator for an element type, or nil when the
	// type is unsupported.
	Creator(elementType model.ElementType) Creator

	// CreateStory materializes one output-side story entity.
	CreateStory(def model.StoryDefinition) (model.StoryHandle, error)
}

// Converter runs one element-centric conversion. The dedup registries and
// the statistics accumulator belong to a single run: use a fresh Converter
// per run, or call Reset between runs. A Converter must not be shared
// across concurrent runs.
type Converter struct {
	nodeStoryMap map[string]string
	builder      Builder
	relations    *relate.Manager

	dedup *deduplicator
	stats *model.ConversionStatistics
}

// Option configures a Converter.
type Option func(*Converter)

// WithRelationshipManager makes the converter delegate story grouping and
// relationship materialization after element creation.
func WithRelationshipManager(m *relate.Manager) Option {
	return func(c *Converter) {
		c.relations = m
	}
}

// New returns a converter over a node-to-story mapping and an element
// builder.
func New(nodeStoryMap map[string]string, builder Builder, opts ...Option) *Converter {
	c := &Converter{
		nodeStoryMap: nodeStoryMap,
		builder:      builder,
		dedup:        newDeduplicator(),
		stats:        model.NewConversionStatistics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reset clears the dedup registries and statistics so the converter can be
// reused for another run.
func (c *Converter) Reset() {
	c.dedup = newDeduplicator()
	c.stats = model.NewConversionStatistics()
}

// Statistics returns the current run's statistics accumulator.
func (c *Converter) Statistics() *model.ConversionStatistics {
	return c.stats
}

// Convert classifies every element, suppresses duplicates, dispatches the
// survivors to the builder, and accumulates statistics. Per-element
// failures are counted and logged without aborting the batch; a malformed
// story list is fatal and yields a result with Errors populated and empty
// element lists.
func (c *Converter) Convert(stories []model.StoryDefinition, elements map[model.ElementType][]*model.ElementDefinition) *model.ConversionResult {
	started := time.Now()
	result := model.NewConversionResult()
	result.Statistics = c.stats

	index, err := analyze.NewStoryIndex(stories)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("invalid story list: %v", err))
		logging.Error("conversion aborted", "error", err)
		return result
	}

	analyzer := analyze.NewStoryAnalyzer(c.nodeStoryMap, index)

	grouped, warnings := c.classifyAll(analyzer, elements)
	result.Warnings = append(result.Warnings, warnings...)

	for _, storyName := range groupOrder(index, grouped) {
		byType := grouped[storyName]
		for _, elementType := range model.ElementTypes() {
			defs := byType[elementType]
			if len(defs) == 0 {
				continue
			}

			unique := c.dedup.dedupe(defs, elementType)
			c.stats.DuplicateElements += len(defs) - len(unique)

			records := c.createBatch(unique, elementType, storyName, result)
			result.CreatedElements = append(result.CreatedElements, records...)
			c.stats.ElementTypeCounts[elementType] += len(records)
		}
	}

	c.stats.CreatedElements = len(result.CreatedElements)

	if c.relations != nil {
		c.materializeRelationships(stories, result)
	}

	c.stats.ProcessingTime = time.Since(started)
	logging.ConversionEvent("element_centric_complete", string(model.ModeElementCentric),
		c.stats.CreatedElements, c.stats.ProcessingTime,
		"duplicates", c.stats.DuplicateElements,
		"failed", c.stats.FailedElements)

	return result
}

// classifyAll runs the analyzer over every definition, grouping survivors
// by story then type and augmenting each survivor with its assignment.
// Unclassifiable elements, and definitions filed under an element type the
// pipeline does not handle, are dropped with a warning and do not count
// toward the run total.
func (c *Converter) classifyAll(analyzer *analyze.StoryAnalyzer, elements map[model.ElementType][]*model.ElementDefinition) (map[string]map[model.ElementType][]*model.ElementDefinition, []string) {
	grouped := make(map[string]map[model.ElementType][]*model.ElementDefinition)
	var warnings []string

	var unknown []string
	for elementType := range elements {
		if !elementType.IsValid() {
			unknown = append(unknown, string(elementType))
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		warnings = append(warnings, fmt.Sprintf("unknown element type %q: %d definitions ignored",
			name, len(elements[model.ElementType(name)])))
	}

	for _, elementType := range model.ElementTypes() {
		for _, def := range elements[elementType] {
			analysis, err := analyzer.Classify(def, elementType)
			if err != nil {
				warnings = append(warnings, err.Error())
				continue
			}

			// The single permitted mutation of a definition: the
			// derived assignment fields, written once.
			def.AssignedStory = analysis.StoryName
			def.AnalysisConfidence = analysis.Confidence
			def.AnalysisMethod = analysis.Method

			byType := grouped[analysis.StoryName]
			if byType == nil {
				byType = make(map[model.ElementType][]*model.ElementDefinition)
				grouped[analysis.StoryName] = byType
			}
			byType[elementType] = append(byType[elementType], def)
			c.stats.TotalElements++
		}
	}

	return grouped, warnings
}

// createBatch dispatches each surviving definition to the builder. A
// creation failure is counted and logged; the batch continues.
func (c *Converter) createBatch(defs []*model.ElementDefinition, elementType model.ElementType, storyName string, result *model.ConversionResult) []*model.ElementRecord {
	creator := c.builder.Creator(elementType)

	records := make([]*model.ElementRecord, 0, len(defs))
	for _, def := range defs {
		if creator == nil {
			c.stats.FailedElements++
			result.Warnings = append(result.Warnings,
				(&errors.CreationError{ElementID: def.ID, ElementType: string(elementType), Err: errors.ErrCreationFailed}).Error())
			logging.Warn("no creator for element type", "element_type", elementType, "element_id", def.ID)
			continue
		}

		built, err := creator.Create(def)
		if err != nil {
			c.stats.FailedElements++
			cerr := &errors.CreationError{ElementID: def.ID, ElementType: string(elementType), Err: err}
			result.Warnings = append(result.Warnings, cerr.Error())
			logging.Warn("element creation failed", "element_id", def.ID, "error", err)
			continue
		}

		records = append(records, &model.ElementRecord{
			ElementID:   def.ID,
			ElementType: elementType,
			StoryName:   storyName,
			Definition:  def,
			CreatedAt:   time.Now(),
			Confidence:  def.AnalysisConfidence,
			Method:      def.AnalysisMethod,
			Built:       built,
		})
		c.stats.MethodCounts[def.AnalysisMethod]++
	}

	return records
}

// materializeRelationships creates story handles, registers every record
// with the relationship manager, and materializes one relationship per
// story. Validation findings are appended to the result warnings.
func (c *Converter) materializeRelationships(stories []model.StoryDefinition, result *model.ConversionResult) {
	for _, storyDef := range stories {
		handle, err := c.builder.CreateStory(storyDef)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("story %s: %v", storyDef.Name, err))
			continue
		}
		result.CreatedStories[storyDef.Name] = handle
	}

	for _, rec := range result.CreatedElements {
		if err := c.relations.Register(rec, rec.StoryName); err != nil {
			result.Warnings = append(result.Warnings, err.Error())
		}
	}

	relationships, err := c.relations.Materialize(result.CreatedStories)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("relationship materialization: %v", err))
		return
	}
	result.SpatialRelationships = relationships

	validation := c.relations.Validate()
	if !validation.Valid {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"relationship validation: %d orphaned, %d duplicate, %d missing stories",
			len(validation.OrphanedElements),
			len(validation.DuplicateRelationships),
			len(validation.MissingStories)))
	}
	result.Warnings = append(result.Warnings, validation.Warnings...)
}

// groupOrder returns story names with indexed stories first, in
// registration order, followed by any extra names (verbatim floor
// attributes naming unindexed stories) sorted for determinism.
func groupOrder(index *analyze.StoryIndex, grouped map[string]map[model.ElementType][]*model.ElementDefinition) []string {
	order := make([]string, 0, len(grouped))
	seen := make(map[string]struct{}, len(grouped))

	for _, name := range index.Names() {
		if _, ok := grouped[name]; ok {
			order = append(order, name)
			seen[name] = struct{}{}
		}
	}

	var extra []string
	for name := range grouped {
		if _, ok := seen[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}
