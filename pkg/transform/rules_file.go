package transform

import (
	"fmt"

	"github.com/ajitpratap0/foodsample/pkg/config"
	"github.com/ajitpratap0/foodsample/pkg/errors"
)

// LoadRules reads a YAML rule file. ${VAR} references are expanded from the
// environment before parsing.
func LoadRules(path string) ([]Rule, error) {
	var set RuleSet
	if err := config.Load(path, &set); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load rules").
			WithDetail("path", path)
	}
	if len(set.Rules) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "rule file declares no rules").
			WithDetail("path", path)
	}
	for i, r := range set.Rules {
		if r.Kind == "" {
			return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("rule %d has no kind", i)).
				WithDetail("path", path).
				WithDetail("rule", r.Name)
		}
	}
	return set.Rules, nil
}

// SaveRules writes rules as a YAML rule file
func SaveRules(path string, rules []Rule) error {
	if err := config.Save(path, RuleSet{Version: 1, Rules: rules}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to save rules").
			WithDetail("path", path)
	}
	return nil
}
