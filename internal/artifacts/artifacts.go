package artifacts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/sitedeploy/internal/utils"
)

const (
	DefaultDir = ".cache"

	RoutingRulesFile    = "s3.routingRules.json"
	SLSRoutingRulesFile = "s3.sls.routingRules.json"
	RedirectObjectsFile = "s3.redirectObjects.json"
	ParamsFile          = "s3.params.json"
	ConfigFile          = "s3.config.json"
)

// Set is the pre-computed input of a deploy: how redirects are expressed and which
// per-path parameters apply.
type Set struct {
	RoutingRules    []RoutingRule
	RedirectObjects []RedirectObject
	Params          ParamRules
}

// SLSRoutingRules converts the routing rules to the serverless-framework shape.
func (s *Set) SLSRoutingRules() []SLSRoutingRule {
	out := make([]SLSRoutingRule, 0, len(s.RoutingRules))
	for _, rule := range s.RoutingRules {
		out = append(out, SLSRoutingRule{
			RoutingRuleCondition: rule.Condition,
			RedirectRule:         rule.Redirect,
		})
	}
	return out
}

// Load reads the artifact set from dir. Missing files yield empty values.
func Load(dir string) (*Set, error) {
	set := &Set{}
	if err := readJSON(filepath.Join(dir, RoutingRulesFile), &set.RoutingRules); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, RedirectObjectsFile), &set.RedirectObjects); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, ParamsFile), &set.Params); err != nil {
		return nil, err
	}

	slog.Debug("artifacts loaded",
		"dir", dir,
		"routingRules", len(set.RoutingRules),
		"redirectObjects", len(set.RedirectObjects),
		"params", len(set.Params),
	)
	return set, nil
}

// Save writes the artifact set to dir. The redirect objects file is only written when
// there are redirect objects, and a stale one is removed otherwise.
func Save(dir string, set *Set) error {
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("artifacts dir: %w", err)
	}

	rules := set.RoutingRules
	if rules == nil {
		rules = []RoutingRule{}
	}
	params := set.Params
	if params == nil {
		params = ParamRules{}
	}

	if err := writeJSON(filepath.Join(dir, RoutingRulesFile), rules); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, SLSRoutingRulesFile), set.SLSRoutingRules()); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, ParamsFile), params); err != nil {
		return err
	}

	redirectsPath := filepath.Join(dir, RedirectObjectsFile)
	if len(set.RedirectObjects) > 0 {
		return writeJSON(redirectsPath, set.RedirectObjects)
	}
	if err := os.Remove(redirectsPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", RedirectObjectsFile, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("artifact missing", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := jsonUnmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := jsonMarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
