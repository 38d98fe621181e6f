package convert

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/core/relate"
)

type fakeBuilt struct{ id string }

func (f fakeBuilt) GlobalID() string { return f.id }

type fakeStory struct {
	fakeBuilt
	name string
}

func (f fakeStory) StoryName() string { return f.name }

type fakeRelationship struct {
	fakeBuilt
	count int
}

func (f fakeRelationship) ElementCount() int { return f.count }

type fakeCreator struct {
	failIDs map[string]bool
	created []string
}

func (f *fakeCreator) Create(def *model.ElementDefinition) (model.BuiltElement, error) {
	if f.failIDs[def.ID] {
		return nil, errors.New("bad geometry")
	}
	f.created = append(f.created, def.ID)
	return fakeBuilt{id: "E-" + def.ID}, nil
}

type fakeBuilder struct {
	creator     *fakeCreator
	unsupported map[model.ElementType]bool
	stories     int
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{creator: &fakeCreator{failIDs: make(map[string]bool)}}
}

func (b *fakeBuilder) Creator(elementType model.ElementType) Creator {
	if b.unsupported[elementType] {
		return nil
	}
	return b.creator
}

func (b *fakeBuilder) CreateStory(def model.StoryDefinition) (model.StoryHandle, error) {
	b.stories++
	return fakeStory{fakeBuilt: fakeBuilt{id: "S-" + def.Name}, name: def.Name}, nil
}

func (b *fakeBuilder) CreateRelationship(story model.StoryHandle, elements []model.BuiltElement) (model.Relationship, error) {
	return fakeRelationship{fakeBuilt: fakeBuilt{id: "R-" + story.StoryName()}, count: len(elements)}, nil
}

func storyFixtures() []model.StoryDefinition {
	return []model.StoryDefinition{
		{Name: "1F", Elevation: 0, Height: 4000},
		{Name: "2F", Elevation: 4000, Height: 3500},
	}
}

func beam(id, floor string) *model.ElementDefinition {
	// Geometry varies with the id so only deliberate duplicates collide
	// on the content-hash check.
	offset := float64(id[len(id)-1]) * 1000
	return &model.ElementDefinition{
		ID:         id,
		Name:       "beam-" + id,
		FloorName:  floor,
		StartPoint: &model.Point{X: 0, Y: offset, Z: 0},
		EndPoint:   &model.Point{X: 6000, Y: offset, Z: 0},
	}
}

func TestConvertStatisticsBalanced(t *testing.T) {
	builder := newFakeBuilder()
	builder.creator.failIDs["B3"] = true

	c := New(nil, builder)
	result := c.Convert(storyFixtures(), map[model.ElementType][]*model.ElementDefinition{
		model.ElementBeam: {
			beam("B1", "1F"),
			beam("B1", "1F"), // duplicate id
			beam("B2", "2F"),
			beam("B3", "1F"), // creation fails
		},
	})

	stats := c.Statistics()
	if stats.TotalElements != 4 {
		t.Fatalf("TotalElements = %d, want 4", stats.TotalElements)
	}
	if stats.CreatedElements != 2 {
		t.Fatalf("CreatedElements = %d, want 2", stats.CreatedElements)
	}
	if stats.DuplicateElements != 1 {
		t.Fatalf("DuplicateElements = %d, want 1", stats.DuplicateElements)
	}
	if stats.FailedElements != 1 {
		t.Fatalf("FailedElements = %d, want 1", stats.FailedElements)
	}
	if !stats.Balanced() {
		t.Fatalf("statistics not balanced: %+v", stats)
	}
	if result.Statistics != stats {
		t.Fatal("result must carry the converter's statistics accumulator")
	}
	if len(result.CreatedElements) != 2 {
		t.Fatalf("result has %d records, want 2", len(result.CreatedElements))
	}
}

func TestConvertFatalOnInvalidStories(t *testing.T) {
	c := New(nil, newFakeBuilder())
	result := c.Convert(
		[]model.StoryDefinition{{Name: "1F"}, {Name: "1F"}},
		map[model.ElementType][]*model.ElementDefinition{
			model.ElementBeam: {beam("B1", "1F")},
		})

	if len(result.Errors) == 0 {
		t.Fatal("want fatal error for duplicate story names")
	}
	if len(result.CreatedElements) != 0 {
		t.Fatalf("no elements should be created, got %d", len(result.CreatedElements))
	}
}

func TestConvertWarnsOnUnknownElementType(t *testing.T) {
	c := New(nil, newFakeBuilder())
	result := c.Convert(storyFixtures(), map[model.ElementType][]*model.ElementDefinition{
		model.ElementBeam:             {beam("B1", "1F")},
		model.ElementType("membrane"): {{ID: "M1"}, {ID: "M2"}},
	})

	if got := c.Statistics().TotalElements; got != 1 {
		t.Fatalf("TotalElements = %d, want 1: unknown types must not count", got)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, `unknown element type "membrane"`) && strings.Contains(w, "2 definitions") {
			found = true
		}
	}
	if !found {
		t.Fatalf("Warnings = %v, want an unknown-type warning naming membrane", result.Warnings)
	}
}

func TestConvertUnclassifiableExcludedFromTotal(t *testing.T) {
	c := New(nil, newFakeBuilder())
	result := c.Convert(storyFixtures(), map[model.ElementType][]*model.ElementDefinition{
		model.ElementBeam: {
			beam("B1", "1F"),
			{ID: "B9", Name: "beam-B9"}, // nothing to classify on
		},
	})

	stats := c.Statistics()
	if stats.TotalElements != 1 {
		t.Fatalf("TotalElements = %d, want 1: unclassifiable elements never count", stats.TotalElements)
	}
	if !warningsMention(result.Warnings, "B9") {
		t.Fatalf("want warning mentioning B9, got %v", result.Warnings)
	}
	if !stats.Balanced() {
		t.Fatalf("statistics not balanced: %+v", stats)
	}
}

func TestConvertNilCreatorCountsFailure(t *testing.T) {
	builder := newFakeBuilder()
	builder.unsupported = map[model.ElementType]bool{model.ElementPile: true}

	c := New(nil, builder)
	result := c.Convert(storyFixtures(), map[model.ElementType][]*model.ElementDefinition{
		model.ElementPile: {{ID: "P1", Name: "pile-P1", FloorName: "1F"}},
	})

	stats := c.Statistics()
	if stats.FailedElements != 1 {
		t.Fatalf("FailedElements = %d, want 1", stats.FailedElements)
	}
	if len(result.CreatedElements) != 0 {
		t.Fatalf("got %d records, want 0", len(result.CreatedElements))
	}
	if !stats.Balanced() {
		t.Fatalf("statistics not balanced: %+v", stats)
	}
}

func TestConvertAssignsDefinitionFields(t *testing.T) {
	def := beam("B1", "2F")
	c := New(nil, newFakeBuilder())
	c.Convert(storyFixtures(), map[model.ElementType][]*model.ElementDefinition{
		model.ElementBeam: {def},
	})

	if def.AssignedStory != "2F" {
		t.Fatalf("AssignedStory = %q, want 2F", def.AssignedStory)
	}
	if def.AnalysisMethod != model.MethodFloorAttribute {
		t.Fatalf("AnalysisMethod = %q, want %q", def.AnalysisMethod, model.MethodFloorAttribute)
	}
	if def.AnalysisConfidence != model.ConfidenceFloorAttribute {
		t.Fatalf("AnalysisConfidence = %v, want %v", def.AnalysisConfidence, model.ConfidenceFloorAttribute)
	}
}

func TestConvertMaterializesRelationships(t *testing.T) {
	builder := newFakeBuilder()
	manager := relate.NewManager(builder)

	c := New(nil, builder, WithRelationshipManager(manager))
	result := c.Convert(storyFixtures(), map[model.ElementType][]*model.ElementDefinition{
		model.ElementBeam: {
			beam("B1", "1F"),
			beam("B2", "1F"),
			beam("B3", "2F"),
		},
	})

	if len(result.CreatedStories) != 2 {
		t.Fatalf("got %d story handles, want 2", len(result.CreatedStories))
	}
	if len(result.SpatialRelationships) != 2 {
		t.Fatalf("got %d relationships, want 2", len(result.SpatialRelationships))
	}
	counts := make(map[int]int)
	for _, rel := range result.SpatialRelationships {
		counts[rel.ElementCount()]++
	}
	if counts[2] != 1 || counts[1] != 1 {
		t.Fatalf("relationship element counts = %v, want one with 2 and one with 1", counts)
	}
}

func TestConvertReset(t *testing.T) {
	c := New(nil, newFakeBuilder())
	c.Convert(storyFixtures(), map[model.ElementType][]*model.ElementDefinition{
		model.ElementBeam: {beam("B1", "1F")},
	})
	if c.Statistics().TotalElements != 1 {
		t.Fatalf("TotalElements = %d before reset, want 1", c.Statistics().TotalElements)
	}

	c.Reset()
	if c.Statistics().TotalElements != 0 {
		t.Fatal("reset must clear statistics")
	}

	// The dedup registries are cleared too: the same element passes again.
	result := c.Convert(storyFixtures(), map[model.ElementType][]*model.ElementDefinition{
		model.ElementBeam: {beam("B1", "1F")},
	})
	if len(result.CreatedElements) != 1 {
		t.Fatalf("got %d records after reset, want 1", len(result.CreatedElements))
	}
}

func warningsMention(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestGroupOrderDeterministic(t *testing.T) {
	c := New(nil, newFakeBuilder())
	// "RF" is not an indexed story; the verbatim floor attribute still
	// groups elements under it, ordered after the indexed stories.
	result := c.Convert(storyFixtures(), map[model.ElementType][]*model.ElementDefinition{
		model.ElementBeam: {
			beam("B1", "RF"),
			beam("B2", "1F"),
		},
	})

	if len(result.CreatedElements) != 2 {
		t.Fatalf("got %d records, want 2", len(result.CreatedElements))
	}
	order := fmt.Sprintf("%s,%s", result.CreatedElements[0].StoryName, result.CreatedElements[1].StoryName)
	if order != "1F,RF" {
		t.Fatalf("creation order = %s, want indexed stories first", order)
	}
}
