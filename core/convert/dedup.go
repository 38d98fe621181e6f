package convert

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/structweave/stb2ifc/core/model"
	"github.com/structweave/stb2ifc/internal/logging"
)

// deduplicator suppresses duplicate element definitions with three
// sequential checks: identity, display name, then content hash. The three
// registries are owned by one converter instance and grow monotonically for
// the duration of a run; they are shared across every (story, type) batch so
// a duplicate is caught wherever it reappears.
type deduplicator struct {
	seenIDs    map[string]struct{}
	seenNames  map[string]struct{}
	seenHashes map[string]struct{}
}

func newDeduplicator() *deduplicator {
	return &deduplicator{
		seenIDs:    make(map[string]struct{}),
		seenNames:  make(map[string]struct{}),
		seenHashes: make(map[string]struct{}),
	}
}

// dedupe returns the unique subset of defs in input order. Any check hit
// short-circuits to "duplicate" with no partial registration; on success the
// element's id, name, and hash are registered together before the next
// element is examined. The id -> name -> hash ordering is a deliberate
// tie-break: two elements with different ids and names but identical
// geometry and section are still duplicates.
func (d *deduplicator) dedupe(defs []*model.ElementDefinition, elementType model.ElementType) []*model.ElementDefinition {
	unique := make([]*model.ElementDefinition, 0, len(defs))

	for _, def := range defs {
		if def.ID != "" {
			if _, dup := d.seenIDs[def.ID]; dup {
				logging.DedupHit("id", def.ID)
				continue
			}
		}

		name := def.DisplayName()
		if name != "" {
			if _, dup := d.seenNames[name]; dup {
				logging.DedupHit("name", def.ID, "name", name)
				continue
			}
		}

		hash := contentHash(def, elementType)
		if _, dup := d.seenHashes[hash]; dup {
			logging.DedupHit("hash", def.ID, "hash", hash[:8])
			continue
		}

		if def.ID != "" {
			d.seenIDs[def.ID] = struct{}{}
		}
		if name != "" {
			d.seenNames[name] = struct{}{}
		}
		d.seenHashes[hash] = struct{}{}

		unique = append(unique, def)
	}

	return unique
}

// contentHash computes a stable digest over the element's type, position
// fields, section fields, and node references, in that order. The type tag
// is part of the hash so a beam and a brace sharing endpoints do not
// collide.
func contentHash(def *model.ElementDefinition, elementType model.ElementType) string {
	var parts []string
	parts = append(parts, string(elementType))

	for _, p := range []*model.Point{def.StartPoint, def.EndPoint, def.BottomPoint, def.TopPoint, def.CenterPoint} {
		if p != nil {
			parts = append(parts, formatPoint(p))
		}
	}

	if def.SectionName != "" {
		parts = append(parts, def.SectionName)
	}
	if def.SectionID != "" {
		parts = append(parts, def.SectionID)
	}

	for _, n := range []string{def.StartNodeID, def.EndNodeID, def.BottomNodeID, def.TopNodeID} {
		if n != "" {
			parts = append(parts, n)
		}
	}
	if len(def.NodeIDs) > 0 {
		parts = append(parts, strings.Join(def.NodeIDs, ","))
	}

	sum := blake3.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func formatPoint(p *model.Point) string {
	return strconv.FormatFloat(p.X, 'g', -1, 64) + "," +
		strconv.FormatFloat(p.Y, 'g', -1, 64) + "," +
		strconv.FormatFloat(p.Z, 'g', -1, 64)
}
