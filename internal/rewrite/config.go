package rewrite

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Chain role names as used in configuration, logs and metrics.
const (
	RoleGadget    = "gadget"
	RolePreCache  = "pre-cache"
	RolePostCache = "post-cache"
)

// ChainsConfig names the stages composing each chain role, in execution
// order. Stage order is deliberate configuration: reordering stages can
// void the sanitization guarantees the defaults are built around.
type ChainsConfig struct {
	Gadget    []string `yaml:"gadget"`
	PreCache  []string `yaml:"pre-cache"`
	PostCache []string `yaml:"post-cache"`
}

// DefaultChainsConfig is the chain composition used when no chain file is
// configured.
func DefaultChainsConfig() ChainsConfig {
	return ChainsConfig{
		Gadget:    []string{"templates", "style-script", "i18n"},
		PreCache:  []string{"strip-headers"},
		PostCache: []string{"via"},
	}
}

// LoadChainsFile reads a chain composition from a YAML file.
func LoadChainsFile(path string) (ChainsConfig, error) {
	var cfg ChainsConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading chain file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing chain file %s: %w", path, err)
	}

	return cfg, nil
}

// StageSet is the collection of stage implementations available to chain
// composition, indexed by stage name.
type StageSet struct {
	response map[string]ResponseRewriter
	gadget   map[string]GadgetRewriter
}

// NewStageSet creates an empty stage set.
func NewStageSet() *StageSet {
	return &StageSet{
		response: make(map[string]ResponseRewriter),
		gadget:   make(map[string]GadgetRewriter),
	}
}

// AddResponse registers a response-level stage under its name.
func (s *StageSet) AddResponse(r ResponseRewriter) {
	s.response[r.Name()] = r
}

// AddGadget registers a markup-level stage under its name.
func (s *StageSet) AddGadget(r GadgetRewriter) {
	s.gadget[r.Name()] = r
}

// ResponseChain composes a response chain from configured stage names.
// Naming a stage this set does not hold is a configuration error.
func (s *StageSet) ResponseChain(role string, names []string) (Chain[*ResponseContent], error) {
	return chainFrom(role, names, s.response)
}

// GadgetChain composes a gadget markup chain from configured stage names.
func (s *StageSet) GadgetChain(role string, names []string) (Chain[*MarkupContent], error) {
	return chainFrom(role, names, s.gadget)
}

func chainFrom[C Content[C]](role string, names []string, available map[string]Rewriter[C]) (Chain[C], error) {
	stages := make([]Rewriter[C], 0, len(names))
	for _, name := range names {
		stage, ok := available[name]
		if !ok {
			return Chain[C]{}, fmt.Errorf("chain %q: unknown rewriter stage %q", role, name)
		}
		stages = append(stages, stage)
	}

	return NewChain(role, stages...), nil
}
