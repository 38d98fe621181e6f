// Package stb parses ST-Bridge (STB) structural model documents into the
// neutral definitions the conversion pipeline consumes. Parsing is XPath
// driven and namespace-agnostic: queries match local element names so both
// prefixed and default-namespace documents work.
package stb

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/zeebo/blake3"

	stberrors "github.com/structweave/stb2ifc/core/errors"
	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/core/profile"
	"github.com/structweave/stb2ifc/internal/logging"
)

// defaultTopHeight is assumed for the topmost story, which has no story
// above it to derive a height from. Millimeters, like all STB coordinates.
const defaultTopHeight = 3000.0

// Model is the parsed content of one ST-Bridge document.
type Model struct {
	Stories      []model.StoryDefinition
	Elements     map[model.ElementType][]*model.ElementDefinition
	NodeStoryMap map[string]string
	Nodes        map[string]model.Point
	Axes         []model.Axis
}

// ElementCount returns the total number of parsed element definitions.
func (m *Model) ElementCount() int {
	total := 0
	for _, defs := range m.Elements {
		total += len(defs)
	}
	return total
}

// Parser parses ST-Bridge documents. Parsed models are cached by content
// digest, so re-parsing an unchanged file is a map lookup. Safe for
// concurrent use.
type Parser struct {
	cache *lruCache[[32]byte, *Model]
}

// NewParser returns a parser with a bounded parse cache.
func NewParser() *Parser {
	return &Parser{cache: newLRUCache[[32]byte, *Model](16)}
}

// Parse parses an ST-Bridge document. The returned model is shared with the
// cache and must be treated as read-only.
func (p *Parser) Parse(data []byte) (*Model, error) {
	key := blake3.Sum256(data)
	if m, ok := p.cache.Get(key); ok {
		logging.Debug("parse cache hit", "bytes", len(data))
		return m, nil
	}

	m, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	p.cache.Put(key, m)
	return m, nil
}

// CacheStats reports parse cache counters.
func (p *Parser) CacheStats() CacheStats {
	return p.cache.Stats()
}

// ParseDocument parses an ST-Bridge document without caching.
func ParseDocument(data []byte) (*Model, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &stberrors.ParseError{Message: "malformed XML", Err: err}
	}

	nodes := parseNodes(doc)
	stories, nodeStoryMap, err := parseStories(doc)
	if err != nil {
		return nil, err
	}
	sections := parseSectionNames(doc)

	m := &Model{
		Stories:      stories,
		Elements:     parseMembers(doc, nodes, sections),
		NodeStoryMap: nodeStoryMap,
		Nodes:        nodes,
		Axes:         parseAxes(doc),
	}
	logging.Info("parsed ST-Bridge document",
		"nodes", len(nodes),
		"stories", len(stories),
		"elements", m.ElementCount(),
		"axes", len(m.Axes))
	return m, nil
}

// parseNodes reads StbNodes/StbNode into an id-keyed coordinate map.
func parseNodes(doc *xmlquery.Node) map[string]model.Point {
	nodes := make(map[string]model.Point)
	for _, n := range xmlquery.Find(doc, "//StbNode") {
		id := n.SelectAttr("id")
		if id == "" {
			continue
		}
		nodes[id] = model.Point{
			X: attrFloat(n, "X", 0),
			Y: attrFloat(n, "Y", 0),
			Z: attrFloat(n, "Z", 0),
		}
	}
	return nodes
}

// parseStories reads StbStory entries. The STB height attribute is the
// story's elevation; each story's own height is derived from the elevation
// of the story above it, with defaultTopHeight for the topmost. The
// node-to-story map comes from each story's StbNodeIdList.
func parseStories(doc *xmlquery.Node) ([]model.StoryDefinition, map[string]string, error) {
	storyNodes := xmlquery.Find(doc, "//StbStory")
	stories := make([]model.StoryDefinition, 0, len(storyNodes))
	nodeStoryMap := make(map[string]string)

	for _, sn := range storyNodes {
		name := sn.SelectAttr("name")
		if name == "" {
			return nil, nil, &stberrors.ParseError{
				Element: "StbStory",
				Message: fmt.Sprintf("story %q has no name", sn.SelectAttr("id")),
			}
		}
		stories = append(stories, model.StoryDefinition{
			Name:      name,
			Elevation: attrFloat(sn, "height", 0),
		})
		for _, idNode := range xmlquery.Find(sn, "StbNodeIdList/StbNodeId") {
			if id := idNode.SelectAttr("id"); id != "" {
				nodeStoryMap[id] = name
			}
		}
	}

	sort.SliceStable(stories, func(i, j int) bool {
		return stories[i].Elevation < stories[j].Elevation
	})
	for i := range stories {
		if i+1 < len(stories) {
			stories[i].Height = stories[i+1].Elevation - stories[i].Elevation
		} else {
			stories[i].Height = defaultTopHeight
		}
	}
	return stories, nodeStoryMap, nil
}

// parseSectionNames maps section ids to their names across all StbSections
// children. Full section geometry is out of scope here; names feed element
// display names and profile normalization.
func parseSectionNames(doc *xmlquery.Node) map[string]string {
	sections := make(map[string]string)
	for _, sec := range xmlquery.Find(doc, "//StbSections/*") {
		id := sec.SelectAttr("id")
		if id == "" {
			continue
		}
		sections[id] = sec.SelectAttr("name")
	}
	return sections
}

// parseAxes reads StbParallelAxes grids. Only the axis name and offset
// distance survive into the model.
func parseAxes(doc *xmlquery.Node) []model.Axis {
	axisNodes := xmlquery.Find(doc, "//StbParallelAxes/StbParallelAxis")
	axes := make([]model.Axis, 0, len(axisNodes))
	for _, an := range axisNodes {
		name := an.SelectAttr("name")
		if name == "" {
			name = "Axis_" + an.SelectAttr("id")
		}
		axes = append(axes, model.Axis{
			Name:     name,
			Distance: attrFloat(an, "distance", 0),
		})
	}
	return axes
}

// memberQuery pairs a compiled member XPath query with the element type it
// produces. Queries are compiled once at init.
type memberQuery struct {
	tag   string
	typ   model.ElementType
	query *xpath.Expr
}

func memberQueries(kinds ...memberQuery) []memberQuery {
	for i := range kinds {
		kinds[i].query = xpath.MustCompile("//" + kinds[i].tag)
	}
	return kinds
}

var (
	linearMembers = memberQueries(
		memberQuery{tag: "StbBeam", typ: model.ElementBeam},
		memberQuery{tag: "StbGirder", typ: model.ElementGirder},
		memberQuery{tag: "StbBrace", typ: model.ElementBrace},
	)
	columnQuery  = xpath.MustCompile("//StbColumn")
	pointMembers = memberQueries(
		memberQuery{tag: "StbFoundationColumn", typ: model.ElementFoundationColumn},
		memberQuery{tag: "StbPile", typ: model.ElementPile},
		memberQuery{tag: "StbFooting", typ: model.ElementFooting},
	)
	areaMembers = memberQueries(
		memberQuery{tag: "StbWall", typ: model.ElementWall},
		memberQuery{tag: "StbSlab", typ: model.ElementSlab},
	)
)

// parseMembers extracts every supported member kind into element
// definitions, resolving node references against the parsed node map.
// Members referencing unknown nodes are dropped with a warning.
func parseMembers(doc *xmlquery.Node, nodes map[string]model.Point, sections map[string]string) map[model.ElementType][]*model.ElementDefinition {
	elements := make(map[model.ElementType][]*model.ElementDefinition)

	for _, kind := range linearMembers {
		for _, mn := range xmlquery.QuerySelectorAll(doc, kind.query) {
			def := baseDefinition(mn, kind.tag, sections)
			def.StartNodeID = mn.SelectAttr("id_node_start")
			def.EndNodeID = mn.SelectAttr("id_node_end")
			start, okS := resolveNode(nodes, def.StartNodeID)
			end, okE := resolveNode(nodes, def.EndNodeID)
			if !okS || !okE {
				dropMember(kind.typ, def.ID, "unresolved end nodes")
				continue
			}
			def.StartPoint, def.EndPoint = start, end
			elements[kind.typ] = append(elements[kind.typ], def)
		}
	}

	for _, mn := range xmlquery.QuerySelectorAll(doc, columnQuery) {
		def := baseDefinition(mn, "StbColumn", sections)
		def.BottomNodeID = mn.SelectAttr("id_node_bottom")
		def.TopNodeID = mn.SelectAttr("id_node_top")
		bottom, okB := resolveNode(nodes, def.BottomNodeID)
		top, okT := resolveNode(nodes, def.TopNodeID)
		if !okB || !okT {
			dropMember(model.ElementColumn, def.ID, "unresolved end nodes")
			continue
		}
		def.BottomPoint, def.TopPoint = bottom, top
		elements[model.ElementColumn] = append(elements[model.ElementColumn], def)
	}

	for _, kind := range pointMembers {
		for _, mn := range xmlquery.QuerySelectorAll(doc, kind.query) {
			def := baseDefinition(mn, kind.tag, sections)
			nodeID := mn.SelectAttr("id_node")
			pt, ok := resolveNode(nodes, nodeID)
			if !ok {
				dropMember(kind.typ, def.ID, "unresolved node")
				continue
			}
			if kind.typ == model.ElementFooting {
				def.PrimaryNodeID = nodeID
				def.NodeIDs = []string{nodeID}
			} else {
				def.BottomNodeID = nodeID
			}
			def.BottomPoint = pt
			elements[kind.typ] = append(elements[kind.typ], def)
		}
	}

	for _, kind := range areaMembers {
		for _, mn := range xmlquery.QuerySelectorAll(doc, kind.query) {
			def := baseDefinition(mn, kind.tag, sections)
			def.NodeIDs = nodeIDOrder(mn)
			center, ok := centroid(nodes, def.NodeIDs)
			if !ok {
				dropMember(kind.typ, def.ID, "unresolved outline nodes")
				continue
			}
			def.PrimaryNodeID = def.NodeIDs[0]
			def.CenterPoint = center
			elements[kind.typ] = append(elements[kind.typ], def)
		}
	}

	return elements
}

// baseDefinition reads the attributes shared by every member tag.
func baseDefinition(mn *xmlquery.Node, tag string, sections map[string]string) *model.ElementDefinition {
	def := &model.ElementDefinition{
		ID:            mn.SelectAttr("id"),
		Name:          mn.SelectAttr("name"),
		FloorName:     mn.SelectAttr("floor"),
		SectionID:     mn.SelectAttr("id_section"),
		KindStructure: mn.SelectAttr("kind_structure"),
		RotateRadians: attrFloat(mn, "rotate", 0) * math.Pi / 180,
	}
	if def.Name == "" {
		def.Name = tag + "_" + def.ID
	}
	def.SectionName = profile.Normalize(sections[def.SectionID])
	return def
}

// nodeIDOrder reads the whitespace-separated node id list that wall and
// slab outlines carry.
func nodeIDOrder(mn *xmlquery.Node) []string {
	order := xmlquery.FindOne(mn, "StbNodeIdOrder")
	if order == nil {
		return nil
	}
	return strings.Fields(order.InnerText())
}

func resolveNode(nodes map[string]model.Point, id string) (*model.Point, bool) {
	pt, ok := nodes[id]
	if !ok {
		return nil, false
	}
	return &pt, true
}

// centroid averages the resolved outline points. Any unresolved id fails
// the whole outline.
func centroid(nodes map[string]model.Point, ids []string) (*model.Point, bool) {
	if len(ids) == 0 {
		return nil, false
	}
	var c model.Point
	for _, id := range ids {
		pt, ok := nodes[id]
		if !ok {
			return nil, false
		}
		c.X += pt.X
		c.Y += pt.Y
		c.Z += pt.Z
	}
	n := float64(len(ids))
	c.X /= n
	c.Y /= n
	c.Z /= n
	return &c, true
}

func dropMember(typ model.ElementType, id, reason string) {
	logging.Warn("dropping member", "type", string(typ), "id", id, "reason", reason)
}

func attrFloat(n *xmlquery.Node, name string, fallback float64) float64 {
	raw := n.SelectAttr(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
