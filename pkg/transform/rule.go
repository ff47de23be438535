// Package transform reshapes a raw product table into the target column set
// by evaluating an ordered list of declarative column rules against each row.
//
// A rule set is compiled against the input column names first, so a rule
// that references a missing column fails before any row is read:
//
//	prog, err := transform.Compile(transform.FoodFacts(), input.Names(), logger)
//	if err != nil {
//	    return err // schema or validation error
//	}
//	out, report, err := prog.Apply(ctx, input)
package transform

// Kind identifies how a rule derives its output value
type Kind string

const (
	// KindColumn copies an input column unchanged, nulls included
	KindColumn Kind = "column"
	// KindConstant emits the same literal for every row
	KindConstant Kind = "constant"
	// KindCast converts an input column to a scalar type
	KindCast Kind = "cast"
	// KindCoalesce emits the first non-null source, or the default
	KindCoalesce Kind = "coalesce"
	// KindJSONFirst extracts the first element (or one of its fields) of a JSON array
	KindJSONFirst Kind = "json_first"
	// KindLocaleTags keeps the tags of one locale from a tag list, prefix removed
	KindLocaleTags Kind = "locale_tags"
	// KindFormat renders a template with {column} placeholders
	KindFormat Kind = "format"
	// KindDigits keeps the digits of a text value and parses them as an integer
	KindDigits Kind = "digits"
)

// CastType is the target type of a cast rule
type CastType string

const (
	CastString CastType = "string"
	CastInt    CastType = "int"
	CastFloat  CastType = "float"
	CastBool   CastType = "bool"
)

// OnError selects what a cast rule emits when a value does not convert
type OnError string

const (
	// OnErrorDefault substitutes the rule's default value
	OnErrorDefault OnError = "default"
	// OnErrorNull substitutes null
	OnErrorNull OnError = "null"
	// OnErrorFail aborts the transform with a cast error
	OnErrorFail OnError = "fail"
)

// Rule declares how one output column is computed
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Kind     Kind     `yaml:"kind" json:"kind"`
	Source   string   `yaml:"source,omitempty" json:"source,omitempty"`
	Sources  []string `yaml:"sources,omitempty" json:"sources,omitempty"`
	Value    any      `yaml:"value,omitempty" json:"value,omitempty"`
	Type     CastType `yaml:"type,omitempty" json:"type,omitempty"`
	Field    string   `yaml:"field,omitempty" json:"field,omitempty"`
	Strip    string   `yaml:"strip,omitempty" json:"strip,omitempty"`
	Locale   string   `yaml:"locale,omitempty" json:"locale,omitempty"`
	Template string   `yaml:"template,omitempty" json:"template,omitempty"`
	OnError  OnError  `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	Default  any      `yaml:"default,omitempty" json:"default,omitempty"`
}

// RuleSet is the serialized form of a rule list
type RuleSet struct {
	Version int    `yaml:"version" json:"version"`
	Rules   []Rule `yaml:"rules" json:"rules"`
}

// Column copies source into name
func Column(name, source string) Rule {
	return Rule{Name: name, Kind: KindColumn, Source: source}
}

// Passthrough copies a column under its own name
func Passthrough(name string) Rule {
	return Column(name, name)
}

// Constant emits value for every row
func Constant(name string, value any) Rule {
	return Rule{Name: name, Kind: KindConstant, Value: value}
}

// Cast converts source to typ, applying onError to values that do not convert
func Cast(name, source string, typ CastType, onError OnError, def any) Rule {
	return Rule{Name: name, Kind: KindCast, Source: source, Type: typ, OnError: onError, Default: def}
}

// Coalesce emits the first non-null of sources, or def
func Coalesce(name string, def any, sources ...string) Rule {
	return Rule{Name: name, Kind: KindCoalesce, Sources: sources, Default: def}
}

// JSONFirst extracts the first array element of source, or its field when set
func JSONFirst(name, source, field string) Rule {
	return Rule{Name: name, Kind: KindJSONFirst, Source: source, Field: field}
}

// LocaleTags keeps the tags of source carrying the locale prefix
func LocaleTags(name, source, locale string) Rule {
	return Rule{Name: name, Kind: KindLocaleTags, Source: source, Locale: locale}
}

// Format renders template, substituting {column} placeholders
func Format(name, template string) Rule {
	return Rule{Name: name, Kind: KindFormat, Template: template}
}

// Digits parses the digits of source as an integer, 0 when there are none
func Digits(name, source string) Rule {
	return Rule{Name: name, Kind: KindDigits, Source: source}
}

// Names returns the output column names of rules in order
func Names(rules []Rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}
