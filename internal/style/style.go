// Package style edits inline CSS declaration lists.
package style

import (
	"strings"

	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// Decl is a single property assignment.
type Decl struct {
	Property  string
	Value     string
	Important bool
}

// Visible is the set of declarations hydration forces on every image.
var Visible = []Decl{
	{Property: "opacity", Value: "1", Important: true},
	{Property: "visibility", Value: "visible", Important: true},
}

func parse(inline string) []*cssast.Declaration {
	if strings.TrimSpace(inline) == "" {
		return nil
	}
	decls, err := parser.ParseDeclarations(inline)
	if err != nil {
		return nil
	}
	return decls
}

// Property returns the last value assigned to name in inline, lower-cased,
// with any !important flag stripped.
func Property(inline, name string) string {
	name = strings.ToLower(name)
	val := ""
	for _, d := range parse(inline) {
		if strings.ToLower(strings.TrimSpace(d.Property)) == name {
			val = strings.ToLower(strings.TrimSpace(d.Value))
		}
	}
	return val
}

// Force returns inline with every declaration in want set to its value.
// Other declarations keep their order; forced ones replace earlier
// assignments of the same property and are appended at the end. The result
// is stable: Force(Force(s)) == Force(s).
func Force(inline string, want []Decl) string {
	forced := make(map[string]bool, len(want))
	for _, d := range want {
		forced[strings.ToLower(d.Property)] = true
	}
	var parts []string
	for _, d := range parse(inline) {
		prop := strings.ToLower(strings.TrimSpace(d.Property))
		if prop == "" || forced[prop] {
			continue
		}
		parts = append(parts, format(Decl{Property: prop, Value: strings.TrimSpace(d.Value), Important: d.Important}))
	}
	for _, d := range want {
		parts = append(parts, format(d))
	}
	return strings.Join(parts, " ")
}

// Satisfies reports whether inline already carries every declaration in want
// with the requested value.
func Satisfies(inline string, want []Decl) bool {
	decls := parse(inline)
	for _, w := range want {
		ok := false
		for _, d := range decls {
			if strings.EqualFold(strings.TrimSpace(d.Property), w.Property) {
				ok = strings.EqualFold(strings.TrimSpace(d.Value), w.Value) && d.Important == w.Important
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func format(d Decl) string {
	s := d.Property + ": " + d.Value
	if d.Important {
		s += " !important"
	}
	return s + ";"
}
