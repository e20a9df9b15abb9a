package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Redirect is a declared redirect from one site path to another path or absolute URL.
type Redirect struct {
	FromPath    string `yaml:"fromPath"`
	ToPath      string `yaml:"toPath"`
	IsPermanent bool   `yaml:"isPermanent"`
}

// Page is a built page. A MatchPath different from Path means client side routing
// serves Path for every key under MatchPath.
type Page struct {
	Path      string `yaml:"path"`
	MatchPath string `yaml:"matchPath"`
}

// Declarations is the site's routing input, written by the site build.
type Declarations struct {
	Redirects []Redirect `yaml:"redirects"`
	Pages     []Page     `yaml:"pages"`
}

// LoadDeclarations reads a YAML or JSON declarations file.
func LoadDeclarations(path string) (*Declarations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	var decl Declarations
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}

	for i, r := range decl.Redirects {
		if r.FromPath == "" || r.ToPath == "" {
			return nil, fmt.Errorf("redirects[%d]: fromPath and toPath are required", i)
		}
	}
	return &decl, nil
}
