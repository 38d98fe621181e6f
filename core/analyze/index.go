// Package analyze classifies structural elements into building stories.
//
// The package has two parts: StoryIndex, a pure lookup structure over each
// story's vertical extent, and StoryAnalyzer, a stateless three-stage
// classification cascade over element definitions.
package analyze

import (
	"fmt"

	"github.com/structweave/stb2ifc/core/model"
)

// interval is one story's half-open vertical extent [Base, Top).
type interval struct {
	name string
	base float64
	top  float64
}

// StoryIndex holds each story's vertical extent in registration order.
// Lookup is linear: story counts are small and first-match-wins semantics
// depend on registration order.
type StoryIndex struct {
	intervals []interval
	byName    map[string]int
}

// NewStoryIndex builds an index from story definitions. It fails on an
// unnamed story or a duplicate story name; either makes the whole story
// list unusable for classification.
func NewStoryIndex(stories []model.StoryDefinition) (*StoryIndex, error) {
	idx := &StoryIndex{
		byName: make(map[string]int, len(stories)),
	}
	for i, s := range stories {
		if s.Name == "" {
			return nil, fmt.Errorf("story %d has no name", i)
		}
		if _, exists := idx.byName[s.Name]; exists {
			return nil, fmt.Errorf("duplicate story name %q", s.Name)
		}
		idx.byName[s.Name] = len(idx.intervals)
		idx.intervals = append(idx.intervals, interval{
			name: s.Name,
			base: s.Elevation,
			top:  s.Elevation + s.Height,
		})
	}
	return idx, nil
}

// ContainingStory returns the first registered story whose half-open
// interval [base, base+height) contains z. A z exactly on a story's upper
// boundary belongs to the next story.
func (idx *StoryIndex) ContainingStory(z float64) (string, bool) {
	for _, iv := range idx.intervals {
		if z >= iv.base && z < iv.top {
			return iv.name, true
		}
	}
	return "", false
}

// Interval returns a story's [base, top) bounds by name.
func (idx *StoryIndex) Interval(name string) (base, top float64, ok bool) {
	i, ok := idx.byName[name]
	if !ok {
		return 0, 0, false
	}
	return idx.intervals[i].base, idx.intervals[i].top, true
}

// Names returns the story names in registration order.
func (idx *StoryIndex) Names() []string {
	names := make([]string, len(idx.intervals))
	for i, iv := range idx.intervals {
		names[i] = iv.name
	}
	return names
}

// Len returns the number of registered stories.
func (idx *StoryIndex) Len() int {
	return len(idx.intervals)
}
