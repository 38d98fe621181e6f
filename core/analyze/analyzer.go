package analyze

import (
	"github.com/structweave/stb2ifc/core/errors"
	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/internal/logging"
)

// anchorNodes returns the type-specific candidate anchor node ids for an
// element, in rule order. A linear member anchors at its start node, a
// vertical member at its bottom node, an area member at its first listed
// node (falling back to the primary node).
type anchorRule func(def *model.ElementDefinition) []string

func startNode(def *model.ElementDefinition) []string {
	if def.StartNodeID == "" {
		return nil
	}
	return []string{def.StartNodeID}
}

func bottomNode(def *model.ElementDefinition) []string {
	if def.BottomNodeID == "" {
		return nil
	}
	return []string{def.BottomNodeID}
}

func firstListedNode(def *model.ElementDefinition) []string {
	var nodes []string
	if len(def.NodeIDs) > 0 && def.NodeIDs[0] != "" {
		nodes = append(nodes, def.NodeIDs[0])
	}
	if def.PrimaryNodeID != "" {
		nodes = append(nodes, def.PrimaryNodeID)
	}
	return nodes
}

// anchorRules maps each element type to its anchor-node rule. Types absent
// from this table cannot be classified by the node-reference stage.
var anchorRules = map[model.ElementType]anchorRule{
	model.ElementBeam:             startNode,
	model.ElementGirder:           startNode,
	model.ElementBrace:            startNode,
	model.ElementColumn:           bottomNode,
	model.ElementPile:             bottomNode,
	model.ElementFoundationColumn: bottomNode,
	model.ElementWall:             firstListedNode,
	model.ElementSlab:             firstListedNode,
	model.ElementFooting:          firstListedNode,
}

// stage is one step of the classification cascade. It returns a result and
// true on success, or nil and false when the stage cannot decide.
type stage func(def *model.ElementDefinition, elementType model.ElementType) (*model.AnalysisResult, bool)

// StoryAnalyzer classifies one element's story membership via a three-stage
// cascade: explicit floor attribute, anchor-node lookup, then Z-coordinate
// containment. First success wins; no stage is retried.
//
// The analyzer is stateless apart from the injected lookup tables and is
// safe for concurrent use.
type StoryAnalyzer struct {
	nodeStoryMap map[string]string
	index        *StoryIndex
	stages       []stage
}

// NewStoryAnalyzer builds an analyzer over a node-id to story-name mapping
// and a story index. Either may be empty; the corresponding stages then
// always fail.
func NewStoryAnalyzer(nodeStoryMap map[string]string, index *StoryIndex) *StoryAnalyzer {
	a := &StoryAnalyzer{
		nodeStoryMap: nodeStoryMap,
		index:        index,
	}
	a.stages = []stage{
		a.byFloorAttribute,
		a.byNodeReference,
		a.byCoordinate,
	}
	return a
}

// Classify determines the story an element belongs to. It fails with an
// UnclassifiableError when all three stages fail; the caller must report
// the element as unclassified rather than silently dropping it.
func (a *StoryAnalyzer) Classify(def *model.ElementDefinition, elementType model.ElementType) (*model.AnalysisResult, error) {
	for _, s := range a.stages {
		if result, ok := s(def, elementType); ok {
			return result, nil
		}
	}
	logging.ClassificationMiss(def.ID, string(elementType))
	return nil, &errors.UnclassifiableError{
		ElementID:   def.ID,
		ElementType: string(elementType),
	}
}

// byFloorAttribute returns the element's explicit story-name attribute
// verbatim. Authoritative: it short-circuits the other stages even when
// they would disagree.
func (a *StoryAnalyzer) byFloorAttribute(def *model.ElementDefinition, _ model.ElementType) (*model.AnalysisResult, bool) {
	if def.FloorName == "" {
		return nil, false
	}
	return &model.AnalysisResult{
		StoryName:  def.FloorName,
		Confidence: model.ConfidenceFloorAttribute,
		Method:     model.MethodFloorAttribute,
	}, true
}

// byNodeReference looks up the element's type-specific anchor node in the
// node-to-story mapping. Fails when the type has no anchor rule or no
// candidate node is present in the mapping.
func (a *StoryAnalyzer) byNodeReference(def *model.ElementDefinition, elementType model.ElementType) (*model.AnalysisResult, bool) {
	rule, ok := anchorRules[elementType]
	if !ok {
		return nil, false
	}
	for _, nodeID := range rule(def) {
		story, ok := a.nodeStoryMap[nodeID]
		if !ok {
			continue
		}
		return &model.AnalysisResult{
			StoryName:  story,
			Confidence: model.ConfidenceNodeReference,
			Method:     model.MethodNodeReference,
			NodeID:     nodeID,
		}, true
	}
	return nil, false
}

// byCoordinate compares a representative Z against every story interval in
// registration order; the first containing half-open interval wins.
func (a *StoryAnalyzer) byCoordinate(def *model.ElementDefinition, _ model.ElementType) (*model.AnalysisResult, bool) {
	if a.index == nil || a.index.Len() == 0 {
		return nil, false
	}
	z, ok := representativeZ(def)
	if !ok {
		return nil, false
	}
	story, ok := a.index.ContainingStory(z)
	if !ok {
		return nil, false
	}
	return &model.AnalysisResult{
		StoryName:  story,
		Confidence: model.ConfidenceCoordinate,
		Method:     model.MethodCoordinate,
		ZValue:     &z,
	}, true
}

// representativeZ extracts the element's representative Z coordinate:
// midpoint of start/end, then midpoint of bottom/top, then the single
// center point, in that priority order.
func representativeZ(def *model.ElementDefinition) (float64, bool) {
	switch {
	case def.StartPoint != nil && def.EndPoint != nil:
		return (def.StartPoint.Z + def.EndPoint.Z) / 2, true
	case def.BottomPoint != nil && def.TopPoint != nil:
		return (def.BottomPoint.Z + def.TopPoint.Z) / 2, true
	case def.StartPoint != nil:
		return def.StartPoint.Z, true
	case def.BottomPoint != nil:
		return def.BottomPoint.Z, true
	case def.CenterPoint != nil:
		return def.CenterPoint.Z, true
	}
	return 0, false
}
