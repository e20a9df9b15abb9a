package artifacts

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RoutingRule mirrors the S3 website configuration routing rule JSON shape.
type RoutingRule struct {
	Condition RoutingRuleCondition `json:"Condition"`
	Redirect  RoutingRuleRedirect  `json:"Redirect"`
}

type RoutingRuleCondition struct {
	KeyPrefixEquals             string `json:"KeyPrefixEquals,omitempty"`
	HttpErrorCodeReturnedEquals string `json:"HttpErrorCodeReturnedEquals,omitempty"`
}

type RoutingRuleRedirect struct {
	ReplaceKeyWith       string `json:"ReplaceKeyWith,omitempty"`
	ReplaceKeyPrefixWith string `json:"ReplaceKeyPrefixWith,omitempty"`
	HttpRedirectCode     string `json:"HttpRedirectCode,omitempty"`
	Protocol             string `json:"Protocol,omitempty"`
	HostName             string `json:"HostName,omitempty"`
}

// SLSRoutingRule is the serverless-framework flavour of RoutingRule.
type SLSRoutingRule struct {
	RoutingRuleCondition RoutingRuleCondition `json:"RoutingRuleCondition"`
	RedirectRule         RoutingRuleRedirect  `json:"RedirectRule"`
}

// RedirectObject describes a placeholder object that redirects FromPath to ToPath.
type RedirectObject struct {
	FromPath string `json:"fromPath" yaml:"fromPath"`
	ToPath   string `json:"toPath" yaml:"toPath"`
}

// ParamRule applies Params to every key matching the glob Pattern.
type ParamRule struct {
	Pattern string            `json:"pattern" yaml:"pattern" mapstructure:"pattern"`
	Params  map[string]string `json:"params" yaml:"params" mapstructure:"params"`
}

// ParamRules is an ordered rule list. Later rules override earlier ones for the same param.
//
// On disk it is either a list of ParamRule or a JSON object keyed by pattern, in which
// case declaration order is taken from the document.
type ParamRules []ParamRule

func (p *ParamRules) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*p = nil
		return nil
	case trimmed[0] == '[':
		var rules []ParamRule
		if err := jsonUnmarshal(trimmed, &rules); err != nil {
			return err
		}
		*p = rules
		return nil
	case trimmed[0] == '{':
		rules, err := orderedParamRules(trimmed)
		if err != nil {
			return err
		}
		*p = rules
		return nil
	}
	return errors.New("params: expected a list or an object")
}

// orderedParamRules decodes `{"glob": {"Param": "value"}}` keeping key order.
// JSON is valid YAML, and yaml.Node keeps mapping order where Go maps do not.
func orderedParamRules(data []byte) (ParamRules, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	return ParamRulesFromNode(doc.Content[0])
}

// ParamRulesFromNode decodes params from a parsed YAML (or JSON) node. A mapping keyed by
// glob keeps document order; a sequence is decoded as a list of ParamRule.
func ParamRulesFromNode(node *yaml.Node) (ParamRules, error) {
	if node == nil {
		return nil, nil
	}
	switch node.Kind {
	case yaml.SequenceNode:
		var rules ParamRules
		for _, item := range node.Content {
			var rule ParamRule
			if err := item.Decode(&rule); err != nil {
				return nil, fmt.Errorf("params: %w", err)
			}
			rules = append(rules, rule)
		}
		return rules, nil
	case yaml.MappingNode:
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		return nil, errors.New("params: expected an object")
	default:
		return nil, errors.New("params: expected an object")
	}

	rules := make(ParamRules, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pattern, value := node.Content[i].Value, node.Content[i+1]
		if value.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("params %q: expected an object of parameters", pattern)
		}
		params := make(map[string]string, len(value.Content)/2)
		for j := 0; j+1 < len(value.Content); j += 2 {
			name, v := value.Content[j].Value, value.Content[j+1]
			if v.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("params %q: parameter %q must be a scalar", pattern, name)
			}
			params[name] = v.Value
		}
		rules = append(rules, ParamRule{Pattern: pattern, Params: params})
	}
	return rules, nil
}
