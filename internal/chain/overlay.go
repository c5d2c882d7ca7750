package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overlay models chains.yaml: extra or overriding chain, token and bridge
// entries applied on top of the built-in tables.
type Overlay struct {
	Chains  []Chain  `yaml:"chains"`
	Tokens  []Token  `yaml:"tokens"`
	Bridges []Bridge `yaml:"bridges"`
}

// LoadOverlay parses an overlay file. An empty path yields an empty overlay.
func LoadOverlay(path string) (Overlay, error) {
	if strings.TrimSpace(path) == "" {
		return Overlay{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Overlay{}, fmt.Errorf("read chain overlay: %w", err)
	}
	var o Overlay
	if err := yaml.Unmarshal(content, &o); err != nil {
		return Overlay{}, fmt.Errorf("parse chain overlay: %w", err)
	}
	for i, c := range o.Chains {
		if c.ID == 0 {
			return Overlay{}, fmt.Errorf("chain overlay entry %d has no id", i)
		}
	}
	for i, t := range o.Tokens {
		if t.ChainID == 0 || strings.TrimSpace(t.Symbol) == "" {
			return Overlay{}, fmt.Errorf("token overlay entry %d needs chain_id and symbol", i)
		}
	}
	return o, nil
}

// Load returns the built-in registry with the overlay at path applied.
func Load(path string) (*Registry, error) {
	o, err := LoadOverlay(path)
	if err != nil {
		return nil, err
	}
	r := Default()
	for _, c := range o.Chains {
		r.addChain(c)
	}
	for _, t := range o.Tokens {
		r.addToken(t)
	}
	r.bridges = append(r.bridges, o.Bridges...)
	return r, nil
}
