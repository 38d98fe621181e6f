// Package profile parses steel section designations as they appear in
// ST-Bridge section names, e.g. "H-300x150x6.5x9", "BOX-300x300x12",
// "P-165.2x4.5", "L-75x75x6". Designations are normalized to a canonical
// form so that dimension-equal sections written with different separators
// or casing compare equal during deduplication.
package profile

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Family identifies a steel shape family.
type Family string

// Shape family constants, matching the common STB designation prefixes.
const (
	FamilyH       Family = "H"   // wide-flange
	FamilyBox     Family = "BOX" // box / square hollow
	FamilyPipe    Family = "P"   // circular hollow
	FamilyAngle   Family = "L"
	FamilyChannel Family = "C"
	FamilyTee     Family = "T"
	FamilyFlatBar Family = "FB"
)

// Section is a parsed steel section designation.
type Section struct {
	Family Family
	// Dimensions in millimeters, in designation order
	// (e.g. depth, width, web, flange for an H shape).
	Dimensions []float64
	// Raw is the original designation text.
	Raw string
}

// Designation renders the canonical form: upper-case family, hyphen,
// dimensions joined with lower-case "x", no trailing zeros.
func (s *Section) Designation() string {
	var b strings.Builder
	b.WriteString(string(s.Family))
	for i, d := range s.Dimensions {
		if i == 0 {
			b.WriteByte('-')
		} else {
			b.WriteByte('x')
		}
		b.WriteString(strconv.FormatFloat(d, 'f', -1, 64))
	}
	return b.String()
}

// sectionGrammar is the participle grammar for steel designations.
//
//nolint:govet // participle grammar tags are not standard struct tags
type sectionGrammar struct {
	Family string    `parser:"@Family"`
	First  float64   `parser:"Hyphen @Number"`
	Rest   []float64 `parser:"( Sep @Number )*"`
}

// sectionLexer tokenizes designations. Family must precede Sep so that the
// X in "BOX" lexes as part of the family name.
var sectionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Family", Pattern: `(?i)(BOX|FB|H|P|L|C|T)`},
	{Name: "Number", Pattern: `[0-9]+(\.[0-9]+)?`},
	{Name: "Sep", Pattern: `[xX*×]`},
	{Name: "Hyphen", Pattern: `-`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var sectionParser = participle.MustBuild[sectionGrammar](
	participle.Lexer(sectionLexer),
	participle.Elide("Whitespace"),
)

// Parse parses a steel section designation. The hyphen is required and the
// match must consume the whole string, so RC section labels like "G1" or
// "C1" that merely start with a family letter are rejected.
func Parse(s string) (*Section, error) {
	trimmed := strings.TrimSpace(s)
	parsed, err := sectionParser.ParseString("", trimmed)
	if err != nil {
		return nil, err
	}
	return &Section{
		Family:     Family(strings.ToUpper(parsed.Family)),
		Dimensions: append([]float64{parsed.First}, parsed.Rest...),
		Raw:        trimmed,
	}, nil
}

// Normalize returns the canonical designation for steel section names and
// the trimmed input unchanged for anything else (RC section labels, empty
// names). It never fails.
func Normalize(s string) string {
	sec, err := Parse(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return sec.Designation()
}
