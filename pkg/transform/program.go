package transform

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/foodsample/pkg/errors"
	"github.com/ajitpratap0/foodsample/pkg/table"
)

const cancelCheckInterval = 1024

// evaluator computes one output value from an input row. fallback reports
// that a per-cell problem was recovered.
type evaluator func(row []any) (v any, fallback bool, err error)

type compiledRule struct {
	rule Rule
	eval evaluator
}

// Program is a rule list bound to an input column layout
type Program struct {
	rules  []compiledRule
	input  []string
	logger *zap.Logger
}

// Report summarizes one Apply call
type Report struct {
	Rows int
	// Fallbacks counts recovered per-cell problems by rule name
	Fallbacks map[string]int
}

// TotalFallbacks sums the fallback counts of every rule
func (r *Report) TotalFallbacks() int {
	total := 0
	for _, n := range r.Fallbacks {
		total += n
	}
	return total
}

// Compile validates rules against the input column names. A rule referencing
// a column absent from input yields a schema error; malformed rules and
// duplicate output names yield validation errors.
func Compile(rules []Rule, input []string, logger *zap.Logger) (*Program, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(rules) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "rule list is empty")
	}

	index := make(map[string]int, len(input))
	for i, name := range input {
		index[name] = i
	}

	p := &Program{input: input, logger: logger.With(zap.String("component", "transform"))}
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return nil, errors.New(errors.ErrorTypeValidation, "rule has no output name").
				WithDetail("position", i)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, errors.New(errors.ErrorTypeValidation, "duplicate output column").
				WithDetail("rule", r.Name)
		}
		seen[r.Name] = struct{}{}

		eval, err := compileRule(r, index)
		if err != nil {
			return nil, err
		}
		p.rules = append(p.rules, compiledRule{rule: r, eval: eval})
	}
	return p, nil
}

// Output returns the output column names in order
func (p *Program) Output() []string {
	names := make([]string, len(p.rules))
	for i, cr := range p.rules {
		names[i] = cr.rule.Name
	}
	return names
}

// Apply evaluates every rule for every row of in and returns a new table with
// one column per rule and exactly as many rows as in. in must have the column
// layout the program was compiled for.
func (p *Program) Apply(ctx context.Context, in *table.Table) (*table.Table, *Report, error) {
	if !sameLayout(in.Names(), p.input) {
		return nil, nil, errors.New(errors.ErrorTypeSchema, "input layout differs from compiled layout")
	}

	rows := in.NumRows()
	columns := make([][]any, len(p.rules))
	for i := range columns {
		columns[i] = make([]any, rows)
	}
	report := &Report{Rows: rows, Fallbacks: make(map[string]int)}

	for r := 0; r < rows; r++ {
		if r%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		row := in.Row(r)
		for i, cr := range p.rules {
			v, fallback, err := cr.eval(row)
			if err != nil {
				return nil, nil, errors.Wrap(err, errors.ErrorTypeCast, "value does not convert").
					WithDetail("rule", cr.rule.Name).
					WithDetail("row", r)
			}
			if fallback {
				report.Fallbacks[cr.rule.Name]++
				p.logger.Debug("fallback applied",
					zap.String("rule", cr.rule.Name),
					zap.Int("row", r))
			}
			columns[i][r] = v
		}
	}

	out, err := table.New()
	if err != nil {
		return nil, nil, err
	}
	for i, cr := range p.rules {
		if err := out.AddColumn(cr.rule.Name, columns[i]); err != nil {
			return nil, nil, err
		}
	}

	p.logger.Info("transform complete",
		zap.Int("rows", rows),
		zap.Int("columns", out.NumColumns()),
		zap.Int("fallbacks", report.TotalFallbacks()))
	return out, report, nil
}

// Transform compiles rules against in and applies them
func Transform(ctx context.Context, in *table.Table, rules []Rule, logger *zap.Logger) (*table.Table, *Report, error) {
	p, err := Compile(rules, in.Names(), logger)
	if err != nil {
		return nil, nil, err
	}
	return p.Apply(ctx, in)
}

// FallbackRules returns the rule names with fallbacks, sorted
func (r *Report) FallbackRules() []string {
	names := make([]string, 0, len(r.Fallbacks))
	for name := range r.Fallbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sameLayout(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func compileRule(r Rule, index map[string]int) (evaluator, error) {
	lookup := func(column string) (int, error) {
		if column == "" {
			return 0, errors.New(errors.ErrorTypeValidation, "rule has no source column").
				WithDetail("rule", r.Name).
				WithDetail("kind", string(r.Kind))
		}
		i, ok := index[column]
		if !ok {
			return 0, errors.New(errors.ErrorTypeSchema, "input is missing column").
				WithDetail("rule", r.Name).
				WithDetail("column", column)
		}
		return i, nil
	}

	switch r.Kind {
	case KindColumn:
		src, err := lookup(r.Source)
		if err != nil {
			return nil, err
		}
		return func(row []any) (any, bool, error) { return row[src], false, nil }, nil

	case KindConstant:
		v, err := literal(r, r.Value)
		if err != nil {
			return nil, err
		}
		return func([]any) (any, bool, error) { return v, false, nil }, nil

	case KindCast:
		return compileCast(r, lookup)

	case KindCoalesce:
		sources := r.Sources
		if len(sources) == 0 && r.Source != "" {
			sources = []string{r.Source}
		}
		if len(sources) == 0 {
			return nil, errors.New(errors.ErrorTypeValidation, "coalesce needs at least one source").
				WithDetail("rule", r.Name)
		}
		idx := make([]int, len(sources))
		for i, s := range sources {
			var err error
			if idx[i], err = lookup(s); err != nil {
				return nil, err
			}
		}
		def, err := literal(r, r.Default)
		if err != nil {
			return nil, err
		}
		return func(row []any) (any, bool, error) {
			for _, i := range idx {
				if row[i] != nil {
					return row[i], false, nil
				}
			}
			return def, false, nil
		}, nil

	case KindJSONFirst:
		src, err := lookup(r.Source)
		if err != nil {
			return nil, err
		}
		return func(row []any) (any, bool, error) {
			text, ok := row[src].(string)
			if !ok || strings.TrimSpace(text) == "" {
				return "", row[src] != nil && !ok, nil
			}
			v, parsed := firstElement(text, r.Field)
			if r.Strip != "" {
				v = strings.ReplaceAll(v, r.Strip, "")
			}
			return v, !parsed, nil
		}, nil

	case KindLocaleTags:
		src, err := lookup(r.Source)
		if err != nil {
			return nil, err
		}
		locale := r.Locale
		if locale == "" {
			locale = "en"
		}
		return func(row []any) (any, bool, error) {
			v, err := localeTags(table.Format(row[src]), locale)
			if err != nil {
				return "[]", true, nil
			}
			return v, false, nil
		}, nil

	case KindFormat:
		parts, err := parseTemplate(r)
		if err != nil {
			return nil, err
		}
		for i := range parts {
			if parts[i].column != "" {
				if parts[i].index, err = lookup(parts[i].column); err != nil {
					return nil, err
				}
			}
		}
		return func(row []any) (any, bool, error) {
			var b strings.Builder
			for _, part := range parts {
				if part.column == "" {
					b.WriteString(part.text)
					continue
				}
				v := row[part.index]
				if v == nil {
					return nil, false, nil
				}
				b.WriteString(table.Format(v))
			}
			return b.String(), false, nil
		}, nil

	case KindDigits:
		src, err := lookup(r.Source)
		if err != nil {
			return nil, err
		}
		return func(row []any) (any, bool, error) {
			if row[src] == nil {
				return int64(0), false, nil
			}
			d := digits(table.Format(row[src]))
			if d == "" {
				return int64(0), false, nil
			}
			n, err := strconv.ParseInt(d, 10, 64)
			if err != nil {
				return int64(0), true, nil
			}
			return n, false, nil
		}, nil

	default:
		return nil, errors.New(errors.ErrorTypeValidation, "unknown rule kind").
			WithDetail("rule", r.Name).
			WithDetail("kind", string(r.Kind))
	}
}

func compileCast(r Rule, lookup func(string) (int, error)) (evaluator, error) {
	src, err := lookup(r.Source)
	if err != nil {
		return nil, err
	}
	convert, ok := converters[r.Type]
	if !ok {
		return nil, errors.New(errors.ErrorTypeValidation, "unknown cast type").
			WithDetail("rule", r.Name).
			WithDetail("type", string(r.Type))
	}

	onError := r.OnError
	if onError == "" {
		onError = OnErrorDefault
	}
	var def any
	switch onError {
	case OnErrorDefault:
		def = zeroValue(r.Type)
		if r.Default != nil {
			d, err := literal(r, r.Default)
			if err != nil {
				return nil, err
			}
			if def, err = convert(d); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeValidation, "default does not match cast type").
					WithDetail("rule", r.Name)
			}
		}
	case OnErrorNull, OnErrorFail:
	default:
		return nil, errors.New(errors.ErrorTypeValidation, "unknown on_error policy").
			WithDetail("rule", r.Name).
			WithDetail("on_error", string(onError))
	}

	return func(row []any) (any, bool, error) {
		v := row[src]
		if v == nil {
			return nil, false, nil
		}
		out, err := convert(v)
		if err == nil {
			return out, false, nil
		}
		if onError == OnErrorFail {
			return nil, false, err
		}
		return def, true, nil
	}, nil
}

func literal(r Rule, v any) (any, error) {
	n, err := table.Normalize(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "unsupported literal").
			WithDetail("rule", r.Name)
	}
	return n, nil
}

type templatePart struct {
	text   string
	column string
	index  int
}

// parseTemplate splits "prefix/{code}" into literal and column parts
func parseTemplate(r Rule) ([]templatePart, error) {
	if r.Template == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "format rule has no template").
			WithDetail("rule", r.Name)
	}
	var parts []templatePart
	rest := r.Template
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			parts = append(parts, templatePart{text: rest})
			break
		}
		if open > 0 {
			parts = append(parts, templatePart{text: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, errors.New(errors.ErrorTypeValidation, "unclosed placeholder in template").
				WithDetail("rule", r.Name)
		}
		column := strings.TrimSpace(rest[open+1 : open+end])
		if column == "" {
			return nil, errors.New(errors.ErrorTypeValidation, "empty placeholder in template").
				WithDetail("rule", r.Name)
		}
		parts = append(parts, templatePart{column: column})
		rest = rest[open+end+1:]
	}
	return parts, nil
}
