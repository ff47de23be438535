package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/ajitpratap0/foodsample/pkg/errors"
	"github.com/ajitpratap0/foodsample/pkg/json"
	"github.com/ajitpratap0/foodsample/pkg/table"
)

// converter converts a non-null scalar to one cast type
type converter func(v any) (any, error)

var converters = map[CastType]converter{
	CastString: toString,
	CastInt:    toInt,
	CastFloat:  toFloat,
	CastBool:   toBool,
}

func toString(v any) (any, error) {
	if f, ok := v.(float64); ok {
		return table.Format(f), nil
	}
	return cast.ToStringE(v)
}

// toInt parses base-10 integers and rounds decimal values half away from zero
func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return roundInt(x)
	case bool:
		return cast.ToInt64E(x)
	case string:
		s := strings.TrimSpace(x)
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("%q is out of integer range", x)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", x)
		}
		return roundInt(f)
	default:
		return nil, fmt.Errorf("cannot convert %T to int", v)
	}
}

func roundInt(f float64) (any, error) {
	r := math.Round(f)
	// float64(math.MaxInt64) is 2^63, which int64 cannot hold
	if math.IsNaN(r) || r >= math.MaxInt64 || r < math.MinInt64 {
		return nil, fmt.Errorf("%v is out of integer range", f)
	}
	return int64(r), nil
}

func toFloat(v any) (any, error) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a finite number", v)
	}
	return f, nil
}

func toBool(v any) (any, error) {
	if s, ok := v.(string); ok {
		v = strings.ToLower(strings.TrimSpace(s))
	}
	return cast.ToBoolE(v)
}

// zeroValue is the default a cast substitutes when none is declared
func zeroValue(t CastType) any {
	switch t {
	case CastInt:
		return int64(0)
	case CastFloat:
		return float64(0)
	case CastBool:
		return false
	default:
		return ""
	}
}

// firstElement returns the first element of a JSON array, or one field of it.
// ok is false when the text is not a JSON array.
func firstElement(text, field string) (string, bool) {
	var arr []any
	if err := json.UnmarshalNumber(text, &arr); err != nil {
		return "", false
	}
	if len(arr) == 0 {
		return "", true
	}
	elem := arr[0]
	if field != "" {
		obj, isObj := elem.(map[string]any)
		if !isObj {
			return "", true
		}
		elem = obj[field]
	}
	switch x := elem.(type) {
	case nil:
		return "", true
	case string:
		return x, true
	case json.Number:
		return string(x), true
	default:
		s, err := json.MarshalString(x)
		if err != nil {
			return "", false
		}
		return s, true
	}
}

// splitTags reads a tag list written either as a JSON array of strings or
// as bracketed comma-separated text such as [en:a, fr:b]
func splitTags(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var tags []string
	if strings.HasPrefix(text, "[") && json.UnmarshalString(text, &tags) == nil {
		return tags
	}
	text = strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	for _, tok := range strings.Split(text, ",") {
		tok = strings.Trim(strings.TrimSpace(tok), `"'`)
		if tok != "" {
			tags = append(tags, tok)
		}
	}
	return tags
}

// localeTags keeps the tags prefixed "<locale>:" with the prefix removed and
// renders them as a JSON array
func localeTags(text, locale string) (string, error) {
	prefix := locale + ":"
	kept := []string{}
	for _, tag := range splitTags(text) {
		if rest, ok := strings.CutPrefix(tag, prefix); ok {
			kept = append(kept, rest)
		}
	}
	return json.MarshalString(kept)
}

// digits keeps the decimal digits of text
func digits(text string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
}
