package index

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// VarType classifies how a data table is populated and consumed.
type VarType string

const (
	// TypeConstant tables are generated symbolically and never read from
	// or written to the store.
	TypeConstant VarType = "constant"
	// TypeExogenous tables carry user-supplied input data.
	TypeExogenous VarType = "exogenous"
	// TypeEndogenous tables receive decision values after a solve.
	TypeEndogenous VarType = "endogenous"
)

func (t VarType) valid() bool {
	switch t {
	case TypeConstant, TypeExogenous, TypeEndogenous:
		return true
	}

	return false
}

// TypeSpec is either a single type shared by every sub-problem, or a
// per-sub-problem assignment. A table that is endogenous in one sub-problem
// may be exogenous in another; that is the coupling mechanism between them.
type TypeSpec struct {
	uniform VarType
	perSub  map[string]VarType
}

// UniformType returns the shared type and true when the same type applies
// to every sub-problem.
func (t *TypeSpec) UniformType() (VarType, bool) {
	if t.perSub != nil {
		return "", false
	}

	return t.uniform, true
}

// ForSubProblem resolves the type of the table within the named sub-problem.
// The second return is false when a per-sub-problem spec does not mention it,
// meaning the table plays no role there.
func (t *TypeSpec) ForSubProblem(name string) (VarType, bool) {
	if t.perSub == nil {
		return t.uniform, true
	}

	vt, ok := t.perSub[name]

	return vt, ok
}

// AnyEndogenous reports whether the table is endogenous in at least one
// types.
func (t *TypeSpec) AnyEndogenous() bool {
	if t.perSub == nil {
		return t.uniform == TypeEndogenous
	}

	for _, vt := range t.perSub {
		if vt == TypeEndogenous {
			return true
		}
	}

	return false
}

// SubProblemsWith lists the sub-problems in which the table has the given
// type. For a uniform spec it returns nil; the caller already knows the type
// applies everywhere.
func (t *TypeSpec) SubProblemsWith(vt VarType) []string {
	if t.perSub == nil {
		return nil
	}

	var names []string

	for name, got := range t.perSub {
		if got == vt {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}

// IsPerSubProblem reports whether different sub-problems see different
// types.
func (t *TypeSpec) IsPerSubProblem() bool {
	return t.perSub != nil
}

// each declares every type/sub-problem pair for validation.
func (t *TypeSpec) each(fn func(sub string, vt VarType)) {
	if t.perSub == nil {
		fn("", t.uniform)

		return
	}

	for sub, vt := range t.perSub {
		fn(sub, vt)
	}
}

// String implements fmt.Stringer.
func (t *TypeSpec) String() string {
	if t.perSub == nil {
		return string(t.uniform)
	}

	subs := make([]string, 0, len(t.perSub))
	for sub := range t.perSub {
		subs = append(subs, sub)
	}

	sort.Strings(subs)

	parts := make([]string, 0, len(subs))
	for _, sub := range subs {
		parts = append(parts, fmt.Sprintf("%s: %s", sub, t.perSub[sub]))
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

// UnmarshalYAML accepts either a bare string or a sub-problem mapping.
func (t *TypeSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return fmt.Errorf("decoding type: %w", err)
		}

		t.uniform = VarType(strings.ToLower(strings.TrimSpace(s)))
		t.perSub = nil

		return nil
	case yaml.MappingNode:
		var m map[string]string
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("decoding per-problem type: %w", err)
		}

		t.perSub = make(map[string]VarType, len(m))
		for sub, s := range m {
			t.perSub[sub] = VarType(strings.ToLower(strings.TrimSpace(s)))
		}

		return nil
	default:
		return fmt.Errorf("type must be a string or a mapping, got yaml kind %d", value.Kind)
	}
}

// MarshalYAML emits the scalar or mapping form the declaration used.
func (t *TypeSpec) MarshalYAML() (any, error) {
	if t.perSub == nil {
		return string(t.uniform), nil
	}

	m := make(map[string]string, len(t.perSub))
	for sub, vt := range t.perSub {
		m[sub] = string(vt)
	}

	return m, nil
}

// UniformTypeSpec builds a spec shared by all sub-problems. Used by tests and
// programmatic catalog construction.
func UniformTypeSpec(vt VarType) TypeSpec {
	return TypeSpec{uniform: vt}
}

// PerSubProblemTypeSpec builds a per-sub-problem spec.
func PerSubProblemTypeSpec(types map[string]VarType) TypeSpec {
	perSub := make(map[string]VarType, len(types))
	for sub, vt := range types {
		perSub[sub] = vt
	}

	return TypeSpec{perSub: perSub}
}

// Dim is the role a coordinate set plays when a variable is laid out as a
// matrix.
type Dim string

const (
	// DimRows spans the rows of the variable's matrix shape.
	DimRows Dim = "rows"
	// DimCols spans the columns of the variable's matrix shape.
	DimCols Dim = "cols"
	// DimIntra replicates the variable's constraints within a single
	// numerical problem.
	DimIntra Dim = "intra"
	// DimInter generates a separate numerical problem per coordinate.
	DimInter Dim = "inter"
)

func (d Dim) valid() bool {
	switch d {
	case DimRows, DimCols, DimIntra, DimInter:
		return true
	}

	return false
}

// SetItem is a single coordinate label within a set, optionally tagged with
// category values that named filters select on.
type SetItem struct {
	Name       string            `yaml:"name"`
	Categories map[string]string `yaml:"categories,omitempty"`
}

// Set is one coordinate axis of the model.
type Set struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Items       []SetItem `yaml:"items,omitempty"`
	// SplitProblem marks the set whose coordinates each become an
	// independent model scenario.
	SplitProblem bool `yaml:"split_problem,omitempty"`
	// CopyFrom inherits the item list of another set at catalog build
	// time. The referenced set must not itself copy.
	CopyFrom string `yaml:"copy_from,omitempty"`
}

// ItemNames returns the item labels in declaration order.
func (s *Set) ItemNames() []string {
	names := make([]string, len(s.Items))
	for i, item := range s.Items {
		names[i] = item.Name
	}

	return names
}

// FilteredItems returns the labels of items matching every category filter.
// Filters map a category key to the admitted values.
func (s *Set) FilteredItems(filters map[string][]string) []string {
	if len(filters) == 0 {
		return s.ItemNames()
	}

	var names []string

	for _, item := range s.Items {
		if itemMatches(item, filters) {
			names = append(names, item.Name)
		}
	}

	return names
}

func itemMatches(item SetItem, filters map[string][]string) bool {
	for key, allowed := range filters {
		got, ok := item.Categories[key]
		if !ok {
			return false
		}

		found := false

		for _, v := range allowed {
			if v == got {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

// categoryKeys lists the category keys used by at least one item.
func (s *Set) categoryKeys() map[string]bool {
	keys := make(map[string]bool)

	for _, item := range s.Items {
		for k := range item.Categories {
			keys[k] = true
		}
	}

	return keys
}

// CategoryKeys lists the category keys used by at least one item, sorted.
func (s *Set) CategoryKeys() []string {
	keys := make([]string, 0)

	for k := range s.categoryKeys() {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Variable is a named view over a data table: a subset of coordinates with
// dimension roles assigned, yielding a scalar, vector or matrix per
// numerical problem.
type Variable struct {
	Name  string `yaml:"-"`
	Table string `yaml:"-"`
	// Type is inherited from the owning table.
	Type TypeSpec `yaml:"-"`
	// Dims assigns a role to each coordinate set. Unlisted sets default
	// to intra, except split sets which are always inter.
	Dims map[string]Dim `yaml:"dims,omitempty"`
	// Filters restrict the admitted items per set, keyed set name then
	// category key.
	Filters map[string]map[string][]string `yaml:"filters,omitempty"`
	// Value names the constant generator producing the variable's data.
	// Only meaningful for constant variables.
	Value string `yaml:"value,omitempty"`
	// BlankFill substitutes missing exogenous values instead of raising
	// a missing-data error.
	BlankFill *float64 `yaml:"blank_fill,omitempty"`
	// Integer requests integer decision values where the backend
	// supports them.
	Integer bool `yaml:"integer,omitempty"`

	// coordinates is the owning table's coordinate order.
	coordinates []string
}

// Role resolves the dimension role of a coordinate set for this variable.
func (v *Variable) Role(set string, split bool) Dim {
	if split {
		return DimInter
	}

	if d, ok := v.Dims[set]; ok {
		return d
	}

	return DimIntra
}

// SetsByRole lists the variable's coordinate sets holding the given role, in
// table coordinate order. The split predicate reports whether a set is a
// problem-splitting set.
func (v *Variable) SetsByRole(role Dim, split func(string) bool) []string {
	var names []string

	for _, set := range v.coordinates {
		if v.Role(set, split(set)) == role {
			names = append(names, set)
		}
	}

	return names
}

// Coordinates returns the owning table's coordinate order.
func (v *Variable) Coordinates() []string {
	return v.coordinates
}

// SetFilters returns the category filters declared for one set.
func (v *Variable) SetFilters(set string) map[string][]string {
	return v.Filters[set]
}

// DataTable groups variables sharing a coordinate space and a storage table.
type DataTable struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Type        TypeSpec             `yaml:"type"`
	Coordinates []string             `yaml:"coordinates"`
	Variables   map[string]*Variable `yaml:"variables"`

	variableOrder []string
}

// VariableNames returns the table's variable names sorted for deterministic
// iteration.
func (t *DataTable) VariableNames() []string {
	return t.variableOrder
}

// ProblemDecl is the symbolic declaration of one sub-problem.
type ProblemDecl struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Objective   string   `yaml:"objective"`
	Constraints []string `yaml:"constraints,omitempty"`
}

// Expressions returns the objective followed by every constraint.
func (p *ProblemDecl) Expressions() []string {
	out := make([]string, 0, len(p.Constraints)+1)
	out = append(out, p.Objective)
	out = append(out, p.Constraints...)

	return out
}
