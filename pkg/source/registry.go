package source

import (
	"sort"
	"strings"
)

// NationalCode is the pseudo-location for whole-of-Australia figures.
const NationalCode = "aus"

var descriptors = []Descriptor{
	{Code: NationalCode, Name: "Australia", Kind: KindNational},
	stateDescriptor("nsw", "New South Wales", 1),
	stateDescriptor("vic", "Victoria", 2),
	stateDescriptor("qld", "Queensland", 3),
	stateDescriptor("sa", "South Australia", 4),
	stateDescriptor("wa", "Western Australia", 5),
	stateDescriptor("tas", "Tasmania", 6),
	stateDescriptor("nt", "Northern Territory", 7),
	stateDescriptor("act", "Australian Capital Territory", 8),
}

// aliases maps long names to canonical codes. Targets outside the registry
// (america -> usa) are resolved as foreign slugs.
var aliases = map[string]string{
	"australia":                    "aus",
	"new south wales":              "nsw",
	"victoria":                     "vic",
	"queensland":                   "qld",
	"south australia":              "sa",
	"western australia":            "wa",
	"tasmania":                     "tas",
	"northern territory":           "nt",
	"australian capital territory": "act",
	"america":                      "usa",
}

func stateDescriptor(code, name string, column int) Descriptor {
	return Descriptor{
		Code: code,
		Name: name,
		Kind: KindState,
		Columns: map[DataType]int{
			Cases:      column,
			Deaths:     column,
			Recoveries: column,
		},
	}
}

// Registry is the static location table.
type Registry struct {
	byCode  map[string]Descriptor
	aliases map[string]string
}

// NewRegistry returns the registry of supported domestic locations.
func NewRegistry() *Registry {
	r := &Registry{
		byCode:  make(map[string]Descriptor, len(descriptors)),
		aliases: aliases,
	}
	for _, d := range descriptors {
		r.byCode[d.Code] = d
	}
	return r
}

// Resolve looks up a canonical code. Aliases are not consulted.
func (r *Registry) Resolve(code string) (Descriptor, bool) {
	d, ok := r.byCode[code]
	return d, ok
}

// Normalize lowercases a location and maps long names to their code.
func (r *Registry) Normalize(location string) string {
	loc := strings.ToLower(strings.TrimSpace(location))
	if code, ok := r.aliases[loc]; ok {
		return code
	}
	return loc
}

// Lookup normalizes location and resolves it. The returned code is the
// normalized form even when no descriptor matches, so callers can use it as
// a foreign slug.
func (r *Registry) Lookup(location string) (string, Descriptor, bool) {
	code := r.Normalize(location)
	d, ok := r.Resolve(code)
	return code, d, ok
}

// Descriptors returns all domestic locations in registry order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Aliases returns a copy of the long-name table sorted by name.
func (r *Registry) Aliases() [][2]string {
	out := make([][2]string, 0, len(r.aliases))
	for name, code := range r.aliases {
		out = append(out, [2]string{name, code})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
