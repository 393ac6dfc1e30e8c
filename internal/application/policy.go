package application

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// TierPolicy describes what one trust tier may do: which models it can reach
// through the shared pool and its daily call limit per limit type.
type TierPolicy struct {
	Name          string         `yaml:"name"`
	AllowedModels []string       `yaml:"allowed_models"`
	DailyLimits   map[string]int `yaml:"daily_limits"`
}

// TrustPolicy is the static mapping from trust tier to capabilities. It is
// read-only from the dispatcher's perspective; LoadFile swaps the whole table
// under the lock so in-flight lookups stay consistent.
type TrustPolicy struct {
	mu    sync.RWMutex
	tiers map[int]TierPolicy
}

// DefaultTrustPolicy returns the built-in tier table. Tier 0 gets no models
// and zero limits, so new users have no shared-pool access at all.
func DefaultTrustPolicy() *TrustPolicy {
	return &TrustPolicy{tiers: map[int]TierPolicy{
		0: {
			Name:          "new",
			AllowedModels: []string{},
			DailyLimits:   map[string]int{},
		},
		1: {
			Name:          "basic",
			AllowedModels: []string{"gpt-3.5-turbo"},
			DailyLimits: map[string]int{
				"conversation_count": 3,
				"advice_count":       2,
				"suggestion_count":   5,
			},
		},
		2: {
			Name:          "standard",
			AllowedModels: []string{"gpt-3.5-turbo", "gpt-4"},
			DailyLimits: map[string]int{
				"conversation_count": 5,
				"advice_count":       3,
				"suggestion_count":   10,
			},
		},
		3: {
			Name:          "advanced",
			AllowedModels: []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo", "claude-3"},
			DailyLimits: map[string]int{
				"conversation_count": 20,
				"advice_count":       10,
				"suggestion_count":   30,
			},
		},
		4: {
			Name:          "trusted",
			AllowedModels: []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo", "claude-3"},
			DailyLimits: map[string]int{
				"conversation_count": 50,
				"advice_count":       20,
				"suggestion_count":   60,
			},
		},
	}}
}

// LoadFile replaces the tier table with the contents of a YAML file keyed by
// tier number. Safe to call while the policy is in use.
func (p *TrustPolicy) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}

	var tiers map[int]TierPolicy
	if err := yaml.Unmarshal(data, &tiers); err != nil {
		return fmt.Errorf("parse policy file %q: %w", path, err)
	}
	if len(tiers) == 0 {
		return fmt.Errorf("policy file %q defines no tiers", path)
	}

	p.mu.Lock()
	p.tiers = tiers
	p.mu.Unlock()
	return nil
}

// AllowedModels returns a copy of the model set for the tier. Unknown tiers
// get an empty set.
func (p *TrustPolicy) AllowedModels(tier int) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tp, ok := p.tiers[tier]
	if !ok {
		return []string{}
	}
	return slices.Clone(tp.AllowedModels)
}

// ModelAllowed reports whether the tier may use the model through the pool.
func (p *TrustPolicy) ModelAllowed(tier int, model string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tp, ok := p.tiers[tier]
	return ok && slices.Contains(tp.AllowedModels, model)
}

// DailyLimit returns the tier's limit for the limit type; 0 for unknown
// tiers or limit types, which denies every reservation.
func (p *TrustPolicy) DailyLimit(tier int, limitType string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tp, ok := p.tiers[tier]
	if !ok {
		return 0
	}
	return tp.DailyLimits[limitType]
}

// DailyLimits returns a copy of the tier's full limit table.
func (p *TrustPolicy) DailyLimits(tier int) map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tp, ok := p.tiers[tier]
	if !ok {
		return map[string]int{}
	}
	limits := make(map[string]int, len(tp.DailyLimits))
	for k, v := range tp.DailyLimits {
		limits[k] = v
	}
	return limits
}

// TierName returns the display name for the tier, or "unknown".
func (p *TrustPolicy) TierName(tier int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tp, ok := p.tiers[tier]
	if !ok {
		return "unknown"
	}
	return tp.Name
}
