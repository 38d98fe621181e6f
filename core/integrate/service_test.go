package integrate

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/structweave/stb2ifc/core/convert"
	"github.com/structweave/stb2ifc/core/errors"
	"github.com/structweave/stb2ifc/core/model"
)

type testBuilt struct{ id string }

func (b testBuilt) GlobalID() string { return b.id }

type testStory struct {
	testBuilt
	name string
}

func (s testStory) StoryName() string { return s.name }

type testRelationship struct {
	testBuilt
	count int
}

func (r testRelationship) ElementCount() int { return r.count }

type testCreator struct {
	failIDs map[string]bool
}

func (c *testCreator) Create(def *model.ElementDefinition) (model.BuiltElement, error) {
	if c.failIDs[def.ID] {
		return nil, stderrors.New("rejected")
	}
	return testBuilt{id: "E-" + def.ID}, nil
}

type testBuilder struct {
	creator *testCreator
	axes    []model.Axis
}

func newTestBuilder() *testBuilder {
	return &testBuilder{creator: &testCreator{failIDs: make(map[string]bool)}}
}

func (b *testBuilder) Creator(elementType model.ElementType) convert.Creator {
	return b.creator
}

func (b *testBuilder) CreateStory(def model.StoryDefinition) (model.StoryHandle, error) {
	return testStory{testBuilt: testBuilt{id: "S-" + def.Name}, name: def.Name}, nil
}

func (b *testBuilder) CreateRelationship(story model.StoryHandle, elements []model.BuiltElement) (model.Relationship, error) {
	return testRelationship{testBuilt: testBuilt{id: "R-" + story.StoryName()}, count: len(elements)}, nil
}

func (b *testBuilder) CreateAxis(axis model.Axis) error {
	b.axes = append(b.axes, axis)
	return nil
}

type legacyStub struct {
	calls int
	err   error
}

func (l *legacyStub) Convert(
	stories []model.StoryDefinition,
	elements map[model.ElementType][]*model.ElementDefinition,
	nodeStoryMap map[string]string,
	axes []model.Axis,
) (*model.ConversionResult, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	result := model.NewConversionResult()
	for _, defs := range elements {
		result.Statistics.CreatedElements += len(defs)
	}
	return result, nil
}

type recorderStub struct {
	records []RunRecord
}

func (r *recorderStub) Record(rec RunRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func testStories() []model.StoryDefinition {
	return []model.StoryDefinition{
		{Name: "1F", Elevation: 0, Height: 4000},
		{Name: "2F", Elevation: 4000, Height: 3500},
	}
}

func floorBeams(ids ...string) map[model.ElementType][]*model.ElementDefinition {
	defs := make([]*model.ElementDefinition, 0, len(ids))
	for i, id := range ids {
		defs = append(defs, &model.ElementDefinition{
			ID:        id,
			Name:      "beam-" + id,
			FloorName: "1F",
			StartPoint: &model.Point{X: 0, Y: float64(i) * 1000, Z: 0},
			EndPoint:   &model.Point{X: 6000, Y: float64(i) * 1000, Z: 0},
		})
	}
	return map[model.ElementType][]*model.ElementDefinition{model.ElementBeam: defs}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		elements int
		stories  int
		want     model.ConversionMode
	}{
		{1500, 5, model.ModeElementCentric},
		{50, 12, model.ModeElementCentric},
		{1001, 1, model.ModeElementCentric},
		{50, 2, model.ModeLegacy},
		{99, 2, model.ModeLegacy},
		{100, 2, model.ModeHybrid},
		{99, 3, model.ModeHybrid},
		{500, 5, model.ModeHybrid},
		{1000, 10, model.ModeHybrid},
	}
	for _, tt := range tests {
		if got := SelectMode(tt.elements, tt.stories); got != tt.want {
			t.Errorf("SelectMode(%d, %d) = %q, want %q", tt.elements, tt.stories, got, tt.want)
		}
	}
}

func TestConvertLegacyMode(t *testing.T) {
	legacy := &legacyStub{}
	cfg := DefaultConfig()
	cfg.Mode = model.ModeLegacy
	svc := NewService(cfg, legacy)

	result, err := svc.Convert(testStories(), floorBeams("B1"), nil, newTestBuilder(), nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if legacy.calls != 1 {
		t.Fatalf("legacy called %d times, want 1", legacy.calls)
	}
	if result.Statistics.CreatedElements != 1 {
		t.Fatalf("CreatedElements = %d, want 1", result.Statistics.CreatedElements)
	}
}

func TestConvertElementCentricMode(t *testing.T) {
	legacy := &legacyStub{}
	cfg := DefaultConfig()
	cfg.Mode = model.ModeElementCentric
	svc := NewService(cfg, legacy)

	result, err := svc.Convert(testStories(), floorBeams("B1", "B2"), nil, newTestBuilder(), nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if legacy.calls != 0 {
		t.Fatal("legacy converter must not run in element-centric mode")
	}
	if len(result.CreatedElements) != 2 {
		t.Fatalf("got %d records, want 2", len(result.CreatedElements))
	}
	if len(result.SpatialRelationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(result.SpatialRelationships))
	}
}

func TestConvertUnsupportedMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = model.ConversionMode("turbo")
	cfg.EnableFallback = false
	svc := NewService(cfg, &legacyStub{})

	result, err := svc.Convert(testStories(), floorBeams("B1"), nil, newTestBuilder(), nil)
	if !stderrors.Is(err, errors.ErrUnsupportedMode) {
		t.Fatalf("err = %v, want ErrUnsupportedMode", err)
	}
	if len(result.Errors) == 0 {
		t.Fatal("result.Errors must carry the mode error")
	}
}

func TestConvertLegacyFailureCarriesErrors(t *testing.T) {
	legacy := &legacyStub{err: stderrors.New("converter broken")}
	cfg := DefaultConfig()
	cfg.Mode = model.ModeLegacy
	svc := NewService(cfg, legacy)

	result, err := svc.Convert(testStories(), floorBeams("B1"), nil, newTestBuilder(), nil)
	if err == nil {
		t.Fatal("Convert must report the legacy failure")
	}
	if result == nil {
		t.Fatal("a result must be returned even on fatal failure")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "converter broken") {
		t.Fatalf("result.Errors = %v, want the wrapped legacy error", result.Errors)
	}
	if len(result.CreatedElements) != 0 {
		t.Fatalf("got %d records, want none on fatal failure", len(result.CreatedElements))
	}
}

func TestHybridFallbackOnQualityGate(t *testing.T) {
	legacy := &legacyStub{}
	builder := newTestBuilder()
	builder.creator.failIDs["B2"] = true // a failed element trips the gate

	svc := NewService(DefaultConfig(), legacy)
	result, err := svc.Convert(testStories(), floorBeams("B1", "B2"), nil, builder, nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if legacy.calls != 1 {
		t.Fatalf("legacy called %d times, want 1 fallback", legacy.calls)
	}
	if svc.FallbackCount() != 1 {
		t.Fatalf("FallbackCount = %d, want 1", svc.FallbackCount())
	}
	if result.Statistics.CreatedElements != 2 {
		t.Fatalf("fallback result CreatedElements = %d, want 2", result.Statistics.CreatedElements)
	}

	history := svc.History()
	if len(history) != 1 || !history[0].FellBack {
		t.Fatalf("history = %+v, want one record with FellBack", history)
	}
}

func TestHybridFallbackDisabled(t *testing.T) {
	legacy := &legacyStub{}
	builder := newTestBuilder()
	builder.creator.failIDs["B1"] = true

	cfg := DefaultConfig()
	cfg.EnableFallback = false
	svc := NewService(cfg, legacy)

	result, err := svc.Convert(testStories(), floorBeams("B1"), nil, builder, nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if legacy.calls != 0 {
		t.Fatal("fallback disabled: legacy must not run")
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "fallback disabled") {
			found = true
		}
	}
	if !found {
		t.Fatalf("Warnings = %v, want gate-rejection warning", result.Warnings)
	}
}

func TestHybridExceptionFallbackDisabledIsFatal(t *testing.T) {
	legacy := &legacyStub{}
	cfg := DefaultConfig()
	cfg.EnableFallback = false
	svc := NewService(cfg, legacy)

	// A duplicate story name aborts the element-centric run with an
	// exception rather than a quality-gate rejection.
	stories := []model.StoryDefinition{
		{Name: "1F", Elevation: 0, Height: 4000},
		{Name: "1F", Elevation: 4000, Height: 3500},
	}
	result, err := svc.Convert(stories, floorBeams("B1"), nil, newTestBuilder(), nil)
	if !stderrors.Is(err, errors.ErrIntegration) {
		t.Fatalf("err = %v, want ErrIntegration: an exception with no fallback must be fatal", err)
	}
	if legacy.calls != 0 {
		t.Fatal("fallback disabled: legacy must not run")
	}
	if len(result.Errors) == 0 {
		t.Fatal("result.Errors must carry the element-centric failure")
	}
	for _, w := range result.Warnings {
		if strings.Contains(w, "fallback disabled") {
			t.Fatalf("Warnings = %v, exception must not be downgraded to a gate warning", result.Warnings)
		}
	}
}

func TestHybridDoubleFailure(t *testing.T) {
	legacy := &legacyStub{err: stderrors.New("legacy broken")}
	builder := newTestBuilder()
	builder.creator.failIDs["B1"] = true

	svc := NewService(DefaultConfig(), legacy)
	result, err := svc.Convert(testStories(), floorBeams("B1"), nil, builder, nil)

	var ierr *errors.IntegrationError
	if !stderrors.As(err, &ierr) {
		t.Fatalf("err = %v, want *IntegrationError", err)
	}
	if ierr.Err == nil || ierr.FallbackErr == nil {
		t.Fatalf("IntegrationError = %+v, want both causes", ierr)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("result.Errors = %v, want primary and fallback errors", result.Errors)
	}
}

func TestHybridCoordinateRatioGate(t *testing.T) {
	legacy := &legacyStub{}
	svc := NewService(DefaultConfig(), legacy)

	// No floor attribute, no mapped nodes: everything classifies by
	// coordinate, ratio 1.0 > 1 - 0.7.
	elements := map[model.ElementType][]*model.ElementDefinition{
		model.ElementBeam: {{
			ID:         "B1",
			Name:       "beam-B1",
			StartPoint: &model.Point{X: 0, Y: 0, Z: 4000},
			EndPoint:   &model.Point{X: 6000, Y: 0, Z: 4000},
		}},
	}
	_, err := svc.Convert(testStories(), elements, nil, newTestBuilder(), nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if legacy.calls != 1 {
		t.Fatalf("legacy called %d times, want 1: coordinate ratio must trip the gate", legacy.calls)
	}
}

func TestAutoModeSmallInputRunsLegacy(t *testing.T) {
	legacy := &legacyStub{}
	cfg := DefaultConfig()
	cfg.Mode = model.ModeAuto
	svc := NewService(cfg, legacy)

	_, err := svc.Convert(testStories(), floorBeams("B1"), nil, newTestBuilder(), nil)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if legacy.calls != 1 {
		t.Fatalf("legacy called %d times, want 1 for a small input", legacy.calls)
	}
	if svc.config.Mode != model.ModeAuto {
		t.Fatalf("config.Mode = %q after run, want auto restored", svc.config.Mode)
	}
	if got := svc.History()[0].Mode; got != model.ModeAuto {
		t.Fatalf("history mode = %q, want the requested mode", got)
	}
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		improvement float64
		duplicates  int
		want        model.ConversionMode
	}{
		{45.0, 0, model.ModeElementCentric},
		{45.0, 2, model.ModeHybrid},
		{15.0, 0, model.ModeHybrid},
		{10.0, 0, model.ModeLegacy},
		{-5.0, 0, model.ModeLegacy},
	}
	for _, tt := range tests {
		if got := Recommend(tt.improvement, tt.duplicates); got != tt.want {
			t.Errorf("Recommend(%v, %d) = %q, want %q", tt.improvement, tt.duplicates, got, tt.want)
		}
	}
}

func TestComparePerformance(t *testing.T) {
	legacy := &legacyStub{}
	svc := NewService(DefaultConfig(), legacy)

	comparison, err := svc.ComparePerformance(testStories(), floorBeams("B1", "B2"), nil, newTestBuilder())
	if err != nil {
		t.Fatalf("ComparePerformance: %v", err)
	}
	if comparison.LegacyElementCount != 0 {
		t.Fatalf("LegacyElementCount = %d, want 0 for the stub", comparison.LegacyElementCount)
	}
	if comparison.ElementCentricCount != 2 {
		t.Fatalf("ElementCentricCount = %d, want 2", comparison.ElementCentricCount)
	}
	if comparison.ElementCentricDuplicates != 0 {
		t.Fatalf("ElementCentricDuplicates = %d, want 0", comparison.ElementCentricDuplicates)
	}
	if !comparison.Recommendation.IsValid() {
		t.Fatalf("Recommendation = %q, not a known mode", comparison.Recommendation)
	}
	if len(svc.Comparisons()) != 1 {
		t.Fatalf("Comparisons() has %d entries, want 1", len(svc.Comparisons()))
	}
}

func TestServiceStatisticsAndRecorder(t *testing.T) {
	legacy := &legacyStub{}
	recorder := &recorderStub{}
	cfg := DefaultConfig()
	cfg.Mode = model.ModeLegacy
	svc := NewService(cfg, legacy, WithRecorder(recorder))

	for i := 0; i < 3; i++ {
		if _, err := svc.Convert(testStories(), floorBeams("B1"), nil, newTestBuilder(), nil); err != nil {
			t.Fatalf("Convert %d: %v", i, err)
		}
	}

	stats := svc.Statistics()
	if stats.TotalConversions != 3 {
		t.Fatalf("TotalConversions = %d, want 3", stats.TotalConversions)
	}
	if stats.ModeUsage[model.ModeLegacy] != 3 {
		t.Fatalf("ModeUsage = %v, want 3 legacy runs", stats.ModeUsage)
	}
	if stats.FallbackRate != 0 {
		t.Fatalf("FallbackRate = %v, want 0", stats.FallbackRate)
	}
	if len(recorder.records) != 3 {
		t.Fatalf("recorder saw %d records, want 3", len(recorder.records))
	}
	if recorder.records[0].ElementCount != 1 {
		t.Fatalf("record ElementCount = %d, want 1", recorder.records[0].ElementCount)
	}
}

func TestAxisBuilderReceivesAxes(t *testing.T) {
	builder := newTestBuilder()
	cfg := DefaultConfig()
	cfg.Mode = model.ModeElementCentric
	svc := NewService(cfg, &legacyStub{})

	axes := []model.Axis{{Name: "X1", Distance: 0}, {Name: "X2", Distance: 6000}}
	if _, err := svc.Convert(testStories(), floorBeams("B1"), nil, builder, axes); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(builder.axes) != 2 {
		t.Fatalf("builder saw %d axes, want 2", len(builder.axes))
	}
}
