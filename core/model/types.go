package model

// types.go - Consolidated conversion data model.
// This file contains the core types shared between the parser, the analyzer,
// the converter, and the integration service. All pipeline packages should
// import these types from core/model rather than defining their own.

import "time"

// ElementType identifies a structural member category.
type ElementType string

// Element type constants. These match the member element names used by the
// ST-Bridge schema, lower-cased.
const (
	ElementBeam             ElementType = "beam"
	ElementGirder           ElementType = "girder"
	ElementColumn           ElementType = "column"
	ElementBrace            ElementType = "brace"
	ElementWall             ElementType = "wall"
	ElementSlab             ElementType = "slab"
	ElementPile             ElementType = "pile"
	ElementFooting          ElementType = "footing"
	ElementFoundationColumn ElementType = "foundation_column"
)

// validElementTypes is the set of element types the pipeline handles.
var validElementTypes = map[ElementType]bool{
	ElementBeam:             true,
	ElementGirder:           true,
	ElementColumn:           true,
	ElementBrace:            true,
	ElementWall:             true,
	ElementSlab:             true,
	ElementPile:             true,
	ElementFooting:          true,
	ElementFoundationColumn: true,
}

// IsValid returns true if the element type is one the pipeline handles.
func (t ElementType) IsValid() bool {
	return validElementTypes[t]
}

// ElementTypes returns all handled element types in a stable order.
func ElementTypes() []ElementType {
	return []ElementType{
		ElementBeam, ElementGirder, ElementColumn, ElementBrace,
		ElementWall, ElementSlab, ElementPile, ElementFooting,
		ElementFoundationColumn,
	}
}

// Point is a coordinate triple in model space (millimetres).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ElementDefinition is the parsed form of a single structural member.
//
// It is a closed struct: the field set is fixed and validated at ingestion.
// Linear members carry start/end fields, vertical members bottom/top fields,
// area members a node list. The Assigned* fields are derived by the analyzer
// and written at most once per element per conversion run; everything else is
// immutable after parsing.
type ElementDefinition struct {
	// ID is the member identifier from the source file. Not guaranteed
	// unique across the whole input; uniqueness is enforced by the
	// deduplicator, not assumed here.
	ID string `json:"id"`

	// Name is the member display name, if present.
	Name string `json:"name,omitempty"`

	// FloorName is the explicit story-name attribute, if present. When set
	// it is authoritative for story assignment.
	FloorName string `json:"floor,omitempty"`

	// SectionID and SectionName identify the member's cross-section.
	SectionID   string `json:"section_id,omitempty"`
	SectionName string `json:"section_name,omitempty"`

	// Node references. Which fields are populated depends on the element
	// type: linear members use Start/End, vertical members Bottom/Top,
	// area members NodeIDs (ordered) and optionally PrimaryNodeID.
	StartNodeID   string   `json:"start_node_id,omitempty"`
	EndNodeID     string   `json:"end_node_id,omitempty"`
	BottomNodeID  string   `json:"bottom_node_id,omitempty"`
	TopNodeID     string   `json:"top_node_id,omitempty"`
	PrimaryNodeID string   `json:"primary_node_id,omitempty"`
	NodeIDs       []string `json:"node_ids,omitempty"`

	// Resolved coordinates for the referenced nodes, when the parser could
	// resolve them. Nil when unresolved.
	StartPoint  *Point `json:"start_point,omitempty"`
	EndPoint    *Point `json:"end_point,omitempty"`
	BottomPoint *Point `json:"bottom_point,omitempty"`
	TopPoint    *Point `json:"top_point,omitempty"`
	CenterPoint *Point `json:"center_point,omitempty"`

	// RotateRadians is the member rotation about its axis.
	RotateRadians float64 `json:"rotate_radians,omitempty"`

	// KindStructure is the material kind code from the source (RC, S, SRC...).
	KindStructure string `json:"kind_structure,omitempty"`

	// Derived fields, written once by the analyzer.
	AssignedStory      string         `json:"assigned_story,omitempty"`
	AnalysisConfidence float64        `json:"analysis_confidence,omitempty"`
	AnalysisMethod     AnalysisMethod `json:"analysis_method,omitempty"`
}

// DisplayName returns the first present of name, section name, or id.
// This is the identity used by the deduplicator's name check.
func (d *ElementDefinition) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.SectionName != "":
		return d.SectionName
	default:
		return d.ID
	}
}

// StoryDefinition is one building story with its vertical extent.
type StoryDefinition struct {
	// Name is the story's unique key (e.g. "GL", "2F").
	Name string `json:"name"`

	// Elevation is the story's base Z in millimetres.
	Elevation float64 `json:"elevation"`

	// Height is the story's vertical extent in millimetres. The story owns
	// the half-open interval [Elevation, Elevation+Height).
	Height float64 `json:"height"`
}

// AnalysisMethod tags which cascade stage classified an element.
type AnalysisMethod string

// Analysis method constants. Confidence values form a strict total order:
// FloorAttribute > NodeReference > Coordinate.
const (
	MethodFloorAttribute AnalysisMethod = "floor_attribute"
	MethodNodeReference  AnalysisMethod = "node_reference"
	MethodCoordinate     AnalysisMethod = "coordinate"
)

// Fixed confidence constants produced by the analyzer. No other values
// are ever produced.
const (
	ConfidenceFloorAttribute = 1.0
	ConfidenceNodeReference  = 0.8
	ConfidenceCoordinate     = 0.6
)

// AnalysisResult is the outcome of classifying one element's story
// membership, kept for audit and debugging.
type AnalysisResult struct {
	StoryName  string         `json:"story_name"`
	Confidence float64        `json:"confidence"`
	Method     AnalysisMethod `json:"method"`

	// Evidence: the node that matched, or the representative Z coordinate,
	// depending on Method.
	NodeID string   `json:"node_id,omitempty"`
	ZValue *float64 `json:"z_value,omitempty"`
}

// ElementRecord describes one created element. Created once by the
// converter, immutable thereafter, owned by the ConversionResult until
// consumed by the relationship manager.
type ElementRecord struct {
	ElementID   string             `json:"element_id"`
	ElementType ElementType        `json:"element_type"`
	StoryName   string             `json:"story_name"`
	Definition  *ElementDefinition `json:"-"`
	CreatedAt   time.Time          `json:"created_at"`
	Confidence  float64            `json:"confidence"`
	Method      AnalysisMethod     `json:"method"`

	// Built is the opaque handle returned by the element builder. The
	// record holds only a reference; the builder owns its lifetime.
	Built BuiltElement `json:"-"`
}

// BuiltElement is an opaque handle to an output-side entity, owned by the
// element builder.
type BuiltElement interface {
	// GlobalID returns the output-side unique identifier of the entity.
	GlobalID() string
}

// StoryHandle is an opaque handle to an output-side story entity.
type StoryHandle interface {
	BuiltElement
	// StoryName returns the source story name the handle was built from.
	StoryName() string
}

// Relationship is an opaque handle to an output-side spatial containment
// relationship. One relationship references many elements.
type Relationship interface {
	BuiltElement
	// ElementCount returns how many elements the relationship contains.
	ElementCount() int
}

// ConversionStatistics accumulates counters for a single conversion run.
// Mutated only by the converter during that run, reset per run.
type ConversionStatistics struct {
	TotalElements     int                    `json:"total_elements"`
	CreatedElements   int                    `json:"created_elements"`
	DuplicateElements int                    `json:"duplicate_elements"`
	FailedElements    int                    `json:"failed_elements"`
	ProcessingTime    time.Duration          `json:"processing_time"`
	ElementTypeCounts map[ElementType]int    `json:"element_type_counts"`
	MethodCounts      map[AnalysisMethod]int `json:"method_counts"`
}

// NewConversionStatistics returns a zeroed statistics accumulator.
func NewConversionStatistics() *ConversionStatistics {
	return &ConversionStatistics{
		ElementTypeCounts: make(map[ElementType]int),
		MethodCounts:      make(map[AnalysisMethod]int),
	}
}

// Balanced reports whether created + duplicate + failed == total, the
// end-of-run accounting invariant.
func (s *ConversionStatistics) Balanced() bool {
	return s.CreatedElements+s.DuplicateElements+s.FailedElements == s.TotalElements
}

// ConversionResult is what every conversion returns, including fatal
// failures (with empty element lists and Errors populated).
type ConversionResult struct {
	CreatedElements      []*ElementRecord       `json:"created_elements"`
	CreatedStories       map[string]StoryHandle `json:"-"`
	SpatialRelationships []Relationship         `json:"-"`
	Statistics           *ConversionStatistics  `json:"statistics"`
	Errors               []string               `json:"errors,omitempty"`
	Warnings             []string               `json:"warnings,omitempty"`
}

// NewConversionResult returns an empty result with allocated collections.
func NewConversionResult() *ConversionResult {
	return &ConversionResult{
		CreatedStories: make(map[string]StoryHandle),
		Statistics:     NewConversionStatistics(),
	}
}

// ConversionMode selects how the integration service runs a conversion.
type ConversionMode string

// Conversion mode constants.
const (
	// ModeLegacy delegates entirely to the story-by-story converter.
	ModeLegacy ConversionMode = "legacy"
	// ModeElementCentric runs the full classification pipeline.
	ModeElementCentric ConversionMode = "element_centric"
	// ModeHybrid runs ElementCentric with a quality-gated legacy fallback.
	ModeHybrid ConversionMode = "hybrid"
	// ModeAuto picks one of the other modes from the input scale.
	ModeAuto ConversionMode = "auto"
)

// validModes is the set of modes the integration service dispatches on.
var validModes = map[ConversionMode]bool{
	ModeLegacy:         true,
	ModeElementCentric: true,
	ModeHybrid:         true,
	ModeAuto:           true,
}

// IsValid returns true if the mode is one the integration service handles.
func (m ConversionMode) IsValid() bool {
	return validModes[m]
}

// Axis is one grid axis definition, passed through to the builder as an
// annotation-only entity.
type Axis struct {
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// ValidationResult reports referential-integrity findings from the
// relationship manager.
type ValidationResult struct {
	Valid                  bool     `json:"valid"`
	OrphanedElements       []string `json:"orphaned_elements,omitempty"`
	DuplicateRelationships []string `json:"duplicate_relationships,omitempty"`
	MissingStories         []string `json:"missing_stories,omitempty"`
	Warnings               []string `json:"warnings,omitempty"`
}
