package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Plan is one organizer subscription tier.  MaxEvents caps how many
// non-cancelled events the organizer may have; 0 means unlimited.
type Plan struct {
	Code         string `yaml:"code" json:"code"`
	Name         string `yaml:"name" json:"name"`
	StripePlanID string `yaml:"stripe_plan_id" json:"-"`
	PriceCents   uint32 `yaml:"price_cents" json:"price_cents"`
	MaxEvents    int    `yaml:"max_events" json:"max_events"`
}

// FreePlanCode names the plan applied to organizers without a live
// subscription.
const FreePlanCode = "free"

// PlanCatalog is the set of plans keyed by code.  A nil catalog means
// plans are not configured and event creation is not limited.
type PlanCatalog map[string]Plan

type planFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadPlans parses a YAML file of the form
//
//	plans:
//	  - code: free
//	    name: Free
//	    max_events: 2
//	  - code: pro
//	    name: Pro
//	    stripe_plan_id: plan_H1...
//	    price_cents: 4990
//	    max_events: 0
//
// An empty path returns a nil catalog.
func LoadPlans(path string) (PlanCatalog, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans: %w", err)
	}
	return ParsePlans(raw)
}

// ParsePlans decodes and validates a plan catalog document.
func ParsePlans(raw []byte) (PlanCatalog, error) {
	var f planFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	cat := make(PlanCatalog, len(f.Plans))
	for _, p := range f.Plans {
		if p.Code == "" {
			return nil, fmt.Errorf("parse plans: plan without code")
		}
		if _, dup := cat[p.Code]; dup {
			return nil, fmt.Errorf("parse plans: duplicate plan %q", p.Code)
		}
		if p.MaxEvents < 0 {
			return nil, fmt.Errorf("parse plans: plan %q has negative max_events", p.Code)
		}
		if p.Code != FreePlanCode && p.StripePlanID == "" {
			return nil, fmt.Errorf("parse plans: paid plan %q needs stripe_plan_id", p.Code)
		}
		cat[p.Code] = p
	}
	return cat, nil
}

// List returns the plans ordered by price, then code.
func (c PlanCatalog) List() []Plan {
	out := make([]Plan, 0, len(c))
	for _, p := range c {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceCents != out[j].PriceCents {
			return out[i].PriceCents < out[j].PriceCents
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// ByStripePlan finds the plan whose Stripe plan ID matches id.
func (c PlanCatalog) ByStripePlan(id string) (Plan, bool) {
	for _, p := range c {
		if p.StripePlanID != "" && p.StripePlanID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// EventLimit returns the max_events allowance for planCode, falling back
// to the free plan.  ok is false when no limit applies.
func (c PlanCatalog) EventLimit(planCode string) (limit int, ok bool) {
	if c == nil {
		return 0, false
	}
	p, found := c[planCode]
	if !found {
		p, found = c[FreePlanCode]
	}
	if !found || p.MaxEvents == 0 {
		return 0, false
	}
	return p.MaxEvents, true
}
