package ifc

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// entity is one DATA-section record of a STEP file.
type entity struct {
	id   int
	typ  string
	args string
}

// File accumulates IFC entities and serializes them as a STEP
// (ISO 10303-21) physical file with the IFC4 schema.
type File struct {
	name     string
	entities []entity
	nextID   int
}

// NewFile returns an empty STEP file container.
func NewFile(name string) *File {
	return &File{name: name, nextID: 1}
}

// add appends one entity and returns its instance number.
func (f *File) add(typ, args string) int {
	id := f.nextID
	f.nextID++
	f.entities = append(f.entities, entity{id: id, typ: typ, args: args})
	return id
}

// Len returns the number of entities in the file.
func (f *File) Len() int {
	return len(f.entities)
}

// WriteTo serializes the file in STEP format.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder

	b.WriteString("ISO-10303-21;\n")
	b.WriteString("HEADER;\n")
	b.WriteString("FILE_DESCRIPTION(('ViewDefinition [ReferenceView]'),'2;1');\n")
	fmt.Fprintf(&b, "FILE_NAME(%s,%s,(''),(''),'stb2ifc','stb2ifc','');\n",
		quote(f.name), quote(time.Now().UTC().Format("2006-01-02T15:04:05")))
	b.WriteString("FILE_SCHEMA(('IFC4'));\n")
	b.WriteString("ENDSEC;\n")
	b.WriteString("DATA;\n")

	for _, e := range f.entities {
		fmt.Fprintf(&b, "#%d=%s(%s);\n", e.id, e.typ, e.args)
	}

	b.WriteString("ENDSEC;\n")
	b.WriteString("END-ISO-10303-21;\n")

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// quote renders a STEP string literal, escaping embedded apostrophes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ref renders an entity reference.
func ref(id int) string {
	return fmt.Sprintf("#%d", id)
}

// refList renders a parenthesized list of entity references.
func refList(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = ref(id)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// stepReal renders a STEP REAL value.
func stepReal(v float64) string {
	s := fmt.Sprintf("%g", v)
	if !strings.ContainsAny(s, ".eE") {
		s += "."
	}
	return s
}
