package boundary

import (
	"slices"

	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
)

// Outcome is the tri-state result of one applicability rule.
type Outcome int

const (
	// OutcomeAbstain means the boundary or the intent does not
	// constrain the field, so the rule carries no signal.
	OutcomeAbstain Outcome = iota
	OutcomeMatch
	OutcomeMismatch
)

// ruleKind separates hard gates from soft signals.
type ruleKind int

const (
	kindCore ruleKind = iota
	kindSoft
)

// applicabilityRule scores one field of the boundary against the
// intent. The rule set is closed; adding a rule changes decision
// semantics for every installed boundary.
type applicabilityRule struct {
	name   string
	kind   ruleKind
	weight float64
	eval   func(b *Boundary, ev *intent.Event) Outcome
}

var applicabilityRules = []applicabilityRule{
	{
		name: "ActionRule", kind: kindCore, weight: 1.0,
		eval: func(b *Boundary, ev *intent.Event) Outcome {
			return containment(b.Constraints.Action.Actions, ev.Action)
		},
	},
	{
		name: "ActorTypeRule", kind: kindCore, weight: 1.0,
		eval: func(b *Boundary, ev *intent.Event) Outcome {
			return containment(b.Constraints.Action.ActorTypes, ev.Actor.Type)
		},
	},
	{
		name: "ResourceTypeRule", kind: kindCore, weight: 1.0,
		eval: func(b *Boundary, ev *intent.Event) Outcome {
			return containment(b.Constraints.Resource.Types, ev.Resource.Type)
		},
	},
	{
		name: "LocationRule", kind: kindSoft, weight: 0.5,
		eval: func(b *Boundary, ev *intent.Event) Outcome {
			if len(b.Constraints.Resource.Locations) == 0 || ev.Resource.Location == "" {
				return OutcomeAbstain
			}
			return containment(b.Constraints.Resource.Locations, ev.Resource.Location)
		},
	},
	{
		name: "PiiRule", kind: kindSoft, weight: 0.5,
		eval: func(b *Boundary, ev *intent.Event) Outcome {
			if b.Constraints.Data.PII == nil || ev.Data.PII == nil {
				return OutcomeAbstain
			}
			if *b.Constraints.Data.PII == *ev.Data.PII {
				return OutcomeMatch
			}
			return OutcomeMismatch
		},
	},
	{
		name: "VolumeRule", kind: kindSoft, weight: 0.5,
		eval: func(b *Boundary, ev *intent.Event) Outcome {
			if b.Constraints.Data.Volume == "" || ev.Data.Volume == "" {
				return OutcomeAbstain
			}
			if b.Constraints.Data.Volume == ev.Data.Volume {
				return OutcomeMatch
			}
			return OutcomeMismatch
		},
	},
	{
		name: "DomainRule", kind: kindSoft, weight: 0.25,
		eval: func(b *Boundary, ev *intent.Event) Outcome {
			if len(b.Scope.Domains) == 0 {
				return OutcomeAbstain
			}
			return containment(b.Scope.Domains, ev.Resource.Type)
		},
	},
	{
		name: "ResourceNameRule", kind: kindSoft, weight: 0.25,
		eval: func(b *Boundary, ev *intent.Event) Outcome {
			if len(b.Constraints.Resource.Names) == 0 || ev.Resource.Name == "" {
				return OutcomeAbstain
			}
			return containment(b.Constraints.Resource.Names, ev.Resource.Name)
		},
	},
}

func containment(allowed []string, value string) Outcome {
	if len(allowed) == 0 {
		return OutcomeAbstain
	}
	if slices.Contains(allowed, value) {
		return OutcomeMatch
	}
	return OutcomeMismatch
}

// RuleOutcome is one rule's contribution to an applicability decision.
type RuleOutcome struct {
	Rule    string
	Outcome Outcome
	Weight  float64
}

// Applicability is the result of matching one boundary against one
// intent. Ephemeral; built fresh per enforcement call.
type Applicability struct {
	Applicable bool
	Score      float64
	Outcomes   []RuleOutcome
}

// ApplicabilityOptions tune the filter.
type ApplicabilityOptions struct {
	// MinScore is the soft-score floor. Zero means the default 0.5.
	MinScore float64
	// Strict additionally rejects any soft mismatch.
	Strict bool
}

// DefaultMinScore is the applicability floor when none is configured.
const DefaultMinScore = 0.5

// CheckApplicability decides whether a boundary constrains an intent.
// A core rule mismatch short-circuits to not applicable. The soft
// score maps the weighted sign sum of participating soft rules into
// [0,1]; with no participating soft rule the score is 1.
func CheckApplicability(b *Boundary, ev *intent.Event, opts ApplicabilityOptions) Applicability {
	minScore := opts.MinScore
	if minScore == 0 {
		minScore = DefaultMinScore
	}

	result := Applicability{Outcomes: make([]RuleOutcome, 0, len(applicabilityRules))}

	var num, den float64
	softMismatch := false

	for _, rule := range applicabilityRules {
		out := rule.eval(b, ev)
		result.Outcomes = append(result.Outcomes, RuleOutcome{
			Rule:    rule.name,
			Outcome: out,
			Weight:  rule.weight,
		})

		if rule.kind == kindCore {
			if out == OutcomeMismatch {
				result.Applicable = false
				result.Score = 0
				return result
			}
			continue
		}

		switch out {
		case OutcomeMatch:
			num += rule.weight
			den += rule.weight
		case OutcomeMismatch:
			num -= rule.weight
			den += rule.weight
			softMismatch = true
		}
	}

	if den == 0 {
		result.Score = 1.0
	} else {
		result.Score = (num + den) / (2 * den)
	}

	result.Applicable = result.Score >= minScore
	if opts.Strict && softMismatch {
		result.Applicable = false
	}
	return result
}
