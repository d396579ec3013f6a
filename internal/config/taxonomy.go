package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Taxonomy classifies raw transaction type labels. Aliases map broker
// specific labels onto the standard types.
type Taxonomy struct {
	Inflow        []string          `yaml:"inflow"`
	Outflow       []string          `yaml:"outflow"`
	ExternalFlows []string          `yaml:"external_flows"`
	Aliases       map[string]string `yaml:"aliases"`
}

func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{
		Inflow: []string{
			"BUY", "DEPOSIT", "TRANSFER_IN",
			"TILDELING INNLEGG RE", "BYTTE INNLEGG VP", "EMISJON INNLEGG VP",
		},
		Outflow: []string{
			"SELL", "WITHDRAWAL", "TRANSFER_OUT",
			"BYTTE UTTAK VP", "INNLØSN. UTTAK VP",
		},
		ExternalFlows: []string{"DEPOSIT", "WITHDRAWAL", "TRANSFER_IN", "TRANSFER_OUT"},
		Aliases: map[string]string{
			"BYTTE INNLEGG VP":     "CORPORATE_ACTION",
			"BYTTE UTTAK VP":       "CORPORATE_ACTION",
			"INNLØSN. UTTAK VP":    "SELL",
			"TILDELING INNLEGG RE": "BUY",
			"EMISJON INNLEGG VP":   "BUY",
		},
	}
}

func LoadTaxonomy(path string) (*Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTaxonomy: %w", err)
	}

	var t Taxonomy
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("LoadTaxonomy: parse %s: %w", path, err)
	}

	def := DefaultTaxonomy()
	if len(t.ExternalFlows) == 0 {
		t.ExternalFlows = def.ExternalFlows
	}
	if t.Aliases == nil {
		t.Aliases = def.Aliases
	}
	return &t, nil
}

// Canonical resolves a raw label to its standard type name.
func (t *Taxonomy) Canonical(label string) string {
	label = strings.ToUpper(strings.TrimSpace(label))
	if std, ok := t.Aliases[label]; ok {
		return std
	}
	return label
}

func (t *Taxonomy) IsExternalFlow(txType string) bool {
	return slices.Contains(t.ExternalFlows, strings.ToUpper(txType))
}
