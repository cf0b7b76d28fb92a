// Package scenarios replays scripted market conversations against
// in-process role nodes. Scenario files are YAML; each describes the
// documents sent and the state every node must end up in.
package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"
)

// PtuDef is one PTU entry of a flex document.
type PtuDef struct {
	Index  int    `yaml:"index"`
	PowerW string `yaml:"power_w"`
}

// ItemDef is one PTU entry of a settlement claim.
type ItemDef struct {
	Index      int    `yaml:"index"`
	OrderedW   string `yaml:"ordered_w"`
	PrognosisW string `yaml:"prognosis_w"`
	AllocatedW string `yaml:"allocated_w"`
	DeliveredW string `yaml:"delivered_w"`
}

// Step sends one document into the conversation. From names the sending
// role; the aggregator is always the recipient.
type Step struct {
	Send   string    `yaml:"send"`
	From   string    `yaml:"from"`
	Group  string    `yaml:"group"`
	Period string    `yaml:"period"`
	Ptus   []PtuDef  `yaml:"ptus,omitempty"`
	Items  []ItemDef `yaml:"items,omitempty"`
}

// DocExpect asserts one stored document on a node's plan board.
type DocExpect struct {
	Node   string `yaml:"node"`
	Type   string `yaml:"type"`
	Status string `yaml:"status"`
}

// OrderedExpect asserts the power the aggregator recorded for an order.
type OrderedExpect struct {
	Group  string `yaml:"group"`
	Period string `yaml:"period"`
	Index  int    `yaml:"index"`
	PowerW string `yaml:"power_w"`
}

// Expected is the end state the scenario must reach.
type Expected struct {
	// Pending maps a role name to its open acknowledgement count.
	Pending   map[string]int  `yaml:"pending,omitempty"`
	Documents []DocExpect     `yaml:"documents,omitempty"`
	Ordered   []OrderedExpect `yaml:"ordered,omitempty"`
}

// Scenario is one scripted conversation.
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Steps       []Step   `yaml:"steps"`
	Expected    Expected `yaml:"expected"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
