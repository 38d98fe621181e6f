// Package ifc builds IFC entities from element definitions and serializes
// them as a STEP physical file. It is the output-side collaborator of the
// conversion pipeline: the converter talks to it through creators, the
// relationship manager through story and relationship materialization.
package ifc

import (
	"fmt"

	"github.com/structweave/stb2ifc/core/convert"
	"github.com/structweave/stb2ifc/core/model"
)

// ifcClasses maps each element type to its IFC entity class.
var ifcClasses = map[model.ElementType]string{
	model.ElementBeam:             "IFCBEAM",
	model.ElementGirder:           "IFCBEAM",
	model.ElementColumn:           "IFCCOLUMN",
	model.ElementBrace:            "IFCMEMBER",
	model.ElementWall:             "IFCWALL",
	model.ElementSlab:             "IFCSLAB",
	model.ElementPile:             "IFCPILE",
	model.ElementFooting:          "IFCFOOTING",
	model.ElementFoundationColumn: "IFCCOLUMN",
}

// builtElement is the opaque handle for one created IFC entity.
type builtElement struct {
	entityID int
	globalID string
	class    string
}

func (b *builtElement) GlobalID() string { return b.globalID }

// storyHandle is the opaque handle for one IfcBuildingStorey.
type storyHandle struct {
	builtElement
	name string
}

func (s *storyHandle) StoryName() string { return s.name }

// relationship is the opaque handle for one containment relationship.
type relationship struct {
	builtElement
	elementCount int
}

func (r *relationship) ElementCount() int { return r.elementCount }

// Builder creates IFC entities into one File. It implements the pipeline's
// Builder interfaces (creators, story materialization, relationship and
// axis creation).
type Builder struct {
	file *File

	projectID  int
	siteID     int
	buildingID int
	contextID  int

	creators map[model.ElementType]*elementCreator
}

// NewBuilder returns a builder with the project, site, building, and
// geometric context entities already in place.
func NewBuilder(projectName string) *Builder {
	b := &Builder{
		file:     NewFile(projectName),
		creators: make(map[model.ElementType]*elementCreator),
	}

	b.contextID = b.file.add("IFCGEOMETRICREPRESENTATIONCONTEXT",
		"$,'Model',3,1.0E-5,"+ref(b.file.add("IFCAXIS2PLACEMENT3D",
			ref(b.file.add("IFCCARTESIANPOINT", "(0.,0.,0.)"))+",$,$"))+",$")

	b.projectID = b.file.add("IFCPROJECT",
		quote(NewGlobalID())+",$,"+quote(projectName)+",$,$,$,$,("+ref(b.contextID)+"),$")
	b.siteID = b.file.add("IFCSITE",
		quote(NewGlobalID())+",$,'Site',$,$,$,$,$,.ELEMENT.,$,$,$,$,$")
	b.buildingID = b.file.add("IFCBUILDING",
		quote(NewGlobalID())+",$,'Building',$,$,$,$,$,.ELEMENT.,$,$,$")

	b.file.add("IFCRELAGGREGATES",
		quote(NewGlobalID())+",$,$,$,"+ref(b.projectID)+",("+ref(b.siteID)+")")
	b.file.add("IFCRELAGGREGATES",
		quote(NewGlobalID())+",$,$,$,"+ref(b.siteID)+",("+ref(b.buildingID)+")")

	for _, t := range model.ElementTypes() {
		b.creators[t] = &elementCreator{builder: b, elementType: t}
	}
	return b
}

// File returns the accumulated STEP file.
func (b *Builder) File() *File {
	return b.file
}

// Creator returns the creator for an element type, or nil when the type is
// unsupported.
func (b *Builder) Creator(elementType model.ElementType) convert.Creator {
	c, ok := b.creators[elementType]
	if !ok {
		return nil
	}
	return c
}

// CreateStory materializes one IfcBuildingStorey with the story's base
// elevation and aggregates it under the building.
func (b *Builder) CreateStory(def model.StoryDefinition) (model.StoryHandle, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("story has no name")
	}
	globalID := NewGlobalID()
	id := b.file.add("IFCBUILDINGSTOREY",
		quote(globalID)+",$,"+quote(def.Name)+",$,$,$,$,$,.ELEMENT.,"+stepReal(def.Elevation))
	b.file.add("IFCRELAGGREGATES",
		quote(NewGlobalID())+",$,$,$,"+ref(b.buildingID)+",("+ref(id)+")")

	return &storyHandle{
		builtElement: builtElement{entityID: id, globalID: globalID, class: "IFCBUILDINGSTOREY"},
		name:         def.Name,
	}, nil
}

// CreateRelationship materializes one IfcRelContainedInSpatialStructure
// referencing every element of a story.
func (b *Builder) CreateRelationship(story model.StoryHandle, elements []model.BuiltElement) (model.Relationship, error) {
	sh, ok := story.(*storyHandle)
	if !ok {
		return nil, fmt.Errorf("story handle was not created by this builder")
	}

	ids := make([]int, 0, len(elements))
	for _, e := range elements {
		be, ok := e.(*builtElement)
		if !ok {
			return nil, fmt.Errorf("element %s was not created by this builder", e.GlobalID())
		}
		ids = append(ids, be.entityID)
	}

	globalID := NewGlobalID()
	id := b.file.add("IFCRELCONTAINEDINSPATIALSTRUCTURE",
		quote(globalID)+",$,"+quote(sh.name+" elements")+",$,"+refList(ids)+","+ref(sh.entityID))

	return &relationship{
		builtElement: builtElement{entityID: id, globalID: globalID, class: "IFCRELCONTAINEDINSPATIALSTRUCTURE"},
		elementCount: len(elements),
	}, nil
}

// CreateAxis materializes one grid axis as an annotation entity.
func (b *Builder) CreateAxis(axis model.Axis) error {
	if axis.Name == "" {
		return fmt.Errorf("axis has no name")
	}
	start := b.file.add("IFCCARTESIANPOINT", "("+stepReal(axis.Distance)+",0.)")
	end := b.file.add("IFCCARTESIANPOINT", "("+stepReal(axis.Distance)+",1.)")
	curve := b.file.add("IFCPOLYLINE", "("+ref(start)+","+ref(end)+")")
	b.file.add("IFCGRIDAXIS", quote(axis.Name)+","+ref(curve)+",.T.")
	return nil
}

// elementCreator creates entities of one element type.
type elementCreator struct {
	builder     *Builder
	elementType model.ElementType
}

// Create validates the definition's geometry references and materializes
// the IFC entity with a local placement derived from the definition's
// resolved points.
func (c *elementCreator) Create(def *model.ElementDefinition) (model.BuiltElement, error) {
	if err := validateGeometry(def, c.elementType); err != nil {
		return nil, err
	}

	placement := c.builder.placementFor(def)
	globalID := NewGlobalID()
	class := ifcClasses[c.elementType]

	name := def.DisplayName()
	id := c.builder.file.add(class,
		quote(globalID)+",$,"+quote(name)+",$,"+quote(def.SectionName)+","+ref(placement)+",$,"+quote(def.ID)+",$")

	return &builtElement{entityID: id, globalID: globalID, class: class}, nil
}

// validateGeometry checks the definition carries the node references its
// category requires. Resolved points are optional; node ids are not.
func validateGeometry(def *model.ElementDefinition, elementType model.ElementType) error {
	switch elementType {
	case model.ElementBeam, model.ElementGirder, model.ElementBrace:
		if def.StartNodeID == "" || def.EndNodeID == "" {
			return fmt.Errorf("linear element %s lacks start/end node references", def.ID)
		}
	case model.ElementColumn, model.ElementPile, model.ElementFoundationColumn:
		if def.BottomNodeID == "" {
			return fmt.Errorf("vertical element %s lacks a bottom node reference", def.ID)
		}
	case model.ElementWall, model.ElementSlab, model.ElementFooting:
		if len(def.NodeIDs) == 0 && def.PrimaryNodeID == "" {
			return fmt.Errorf("area element %s lacks node references", def.ID)
		}
	default:
		return fmt.Errorf("unsupported element type %q", elementType)
	}
	return nil
}

// placementFor derives a local placement from the definition's first
// resolved point, defaulting to the origin.
func (b *Builder) placementFor(def *model.ElementDefinition) int {
	p := firstPoint(def)
	point := b.file.add("IFCCARTESIANPOINT",
		"("+stepReal(p.X)+","+stepReal(p.Y)+","+stepReal(p.Z)+")")
	axis := b.file.add("IFCAXIS2PLACEMENT3D", ref(point)+",$,$")
	return b.file.add("IFCLOCALPLACEMENT", "$,"+ref(axis))
}

func firstPoint(def *model.ElementDefinition) model.Point {
	for _, p := range []*model.Point{def.StartPoint, def.BottomPoint, def.CenterPoint, def.EndPoint, def.TopPoint} {
		if p != nil {
			return *p
		}
	}
	return model.Point{}
}
