// Package vocab holds the canonical vocabulary registry: the closed
// enumerations, keyword tables and slot templates shared by every
// encoder and canonicaliser in the system. The registry is loaded once
// at startup and is immutable afterwards; a malformed vocabulary file
// is fatal.
package vocab

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Slot names the four semantic slices in their fixed encoding order.
type Slot string

const (
	SlotAction   Slot = "action"
	SlotResource Slot = "resource"
	SlotData     Slot = "data"
	SlotRisk     Slot = "risk"
)

// Slots is the fixed encoding order of the four slices.
var Slots = [4]Slot{SlotAction, SlotResource, SlotData, SlotRisk}

// vocabEntry is one canonical value with its keyword aliases.
type vocabEntry struct {
	Keywords []string `yaml:"keywords"`
}

// vocabFile is the on-disk schema of vocabulary.yaml.
type vocabFile struct {
	Version  string            `yaml:"version"`
	Metadata map[string]string `yaml:"metadata"`

	Vocabulary struct {
		Actions             map[string]vocabEntry `yaml:"actions"`
		ActorTypes          map[string]vocabEntry `yaml:"actor_types"`
		ResourceTypes       map[string]vocabEntry `yaml:"resource_types"`
		SensitivityLevels   map[string]vocabEntry `yaml:"sensitivity_levels"`
		Volumes             map[string]vocabEntry `yaml:"volumes"`
		AuthnLevels         map[string]vocabEntry `yaml:"authn_levels"`
		ParamsLengthBuckets map[string]vocabEntry `yaml:"params_length_buckets"`
	} `yaml:"vocabulary"`

	Templates       map[string]map[string]string `yaml:"templates"`
	ExtractionRules map[string]map[string]any    `yaml:"extraction_rules"`
	Examples        map[string]map[string]any    `yaml:"examples"`
}

// Registry is the loaded, immutable canonical vocabulary.
type Registry struct {
	version  string
	metadata map[string]string

	actions       map[string]vocabEntry
	actorTypes    map[string]vocabEntry
	resourceTypes map[string]vocabEntry
	sensitivity   map[string]vocabEntry
	volumes       map[string]vocabEntry
	authnLevels   map[string]vocabEntry
	paramsBuckets map[string]vocabEntry

	// keywordToAction maps each lowercased keyword to its canonical action.
	keywordToAction map[string]string

	templates       map[string]map[string]string
	extractionRules map[string]map[string]any
	examples        map[string]map[string]any
}

// Load parses and validates the embedded default vocabulary.
func Load() (*Registry, error) {
	return parse(defaultVocabulary)
}

// LoadFile parses and validates a vocabulary file from disk, overriding
// the embedded default.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	reg, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("vocabulary file %s: %w", path, err)
	}
	return reg, nil
}

func parse(raw []byte) (*Registry, error) {
	var f vocabFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}

	r := &Registry{
		version:         f.Version,
		metadata:        f.Metadata,
		actions:         f.Vocabulary.Actions,
		actorTypes:      f.Vocabulary.ActorTypes,
		resourceTypes:   f.Vocabulary.ResourceTypes,
		sensitivity:     f.Vocabulary.SensitivityLevels,
		volumes:         f.Vocabulary.Volumes,
		authnLevels:     f.Vocabulary.AuthnLevels,
		paramsBuckets:   f.Vocabulary.ParamsLengthBuckets,
		templates:       f.Templates,
		extractionRules: f.ExtractionRules,
		examples:        f.Examples,
	}

	if err := r.validate(); err != nil {
		return nil, err
	}

	r.keywordToAction = make(map[string]string)
	for action, entry := range r.actions {
		for _, kw := range entry.Keywords {
			r.keywordToAction[strings.ToLower(kw)] = action
		}
	}

	return r, nil
}

// validate enforces the vocabulary schema: every closed set must be
// non-empty and every slot must carry its template variants.
func (r *Registry) validate() error {
	if r.version == "" {
		return fmt.Errorf("vocabulary: missing version")
	}

	sets := []struct {
		name string
		m    map[string]vocabEntry
	}{
		{"actions", r.actions},
		{"actor_types", r.actorTypes},
		{"resource_types", r.resourceTypes},
		{"sensitivity_levels", r.sensitivity},
		{"volumes", r.volumes},
		{"authn_levels", r.authnLevels},
	}
	for _, s := range sets {
		if len(s.m) == 0 {
			return fmt.Errorf("vocabulary: %s set is empty", s.name)
		}
	}

	required := map[Slot][]string{
		SlotAction:   {"format", "with_tool_call"},
		SlotResource: {"minimal", "with_location", "with_name", "with_tool", "full"},
		SlotData:     {"base", "with_params"},
		SlotRisk:     {"base", "with_rate_limit"},
	}
	for slot, variants := range required {
		tmpl, ok := r.templates[string(slot)]
		if !ok {
			return fmt.Errorf("vocabulary: missing templates for slot %s", slot)
		}
		for _, v := range variants {
			if tmpl[v] == "" {
				return fmt.Errorf("vocabulary: slot %s missing template variant %q", slot, v)
			}
		}
	}

	return nil
}

// Version returns the declared vocabulary version.
func (r *Registry) Version() string { return r.version }

// Metadata returns the vocabulary metadata block.
func (r *Registry) Metadata() map[string]string { return r.metadata }

func sortedKeys(m map[string]vocabEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidActions returns the canonical action values, sorted.
func (r *Registry) ValidActions() []string { return sortedKeys(r.actions) }

// ValidActorTypes returns the canonical actor types, sorted.
func (r *Registry) ValidActorTypes() []string { return sortedKeys(r.actorTypes) }

// ValidResourceTypes returns the canonical resource types, sorted.
func (r *Registry) ValidResourceTypes() []string { return sortedKeys(r.resourceTypes) }

// SensitivityLevels returns the canonical sensitivity levels, sorted.
func (r *Registry) SensitivityLevels() []string { return sortedKeys(r.sensitivity) }

// Volumes returns the canonical volume values, sorted.
func (r *Registry) Volumes() []string { return sortedKeys(r.volumes) }

// AuthnLevels returns the canonical authentication levels, sorted.
func (r *Registry) AuthnLevels() []string { return sortedKeys(r.authnLevels) }

// ParamsLengthBuckets returns the canonical params_length buckets, sorted.
func (r *Registry) ParamsLengthBuckets() []string { return sortedKeys(r.paramsBuckets) }

// IsValidAction reports whether action is in the vocabulary.
func (r *Registry) IsValidAction(action string) bool {
	_, ok := r.actions[action]
	return ok
}

// IsValidActorType reports whether actorType is in the vocabulary.
func (r *Registry) IsValidActorType(actorType string) bool {
	_, ok := r.actorTypes[actorType]
	return ok
}

// IsValidResourceType reports whether resourceType is in the vocabulary.
func (r *Registry) IsValidResourceType(resourceType string) bool {
	_, ok := r.resourceTypes[resourceType]
	return ok
}

// IsValidSensitivity reports whether level is in the vocabulary.
func (r *Registry) IsValidSensitivity(level string) bool {
	_, ok := r.sensitivity[level]
	return ok
}

// IsValidVolume reports whether volume is in the vocabulary.
func (r *Registry) IsValidVolume(volume string) bool {
	_, ok := r.volumes[volume]
	return ok
}

// IsValidAuthnLevel reports whether level is in the vocabulary.
func (r *Registry) IsValidAuthnLevel(level string) bool {
	_, ok := r.authnLevels[level]
	return ok
}

// ActionKeywords returns the keyword aliases of a canonical action.
func (r *Registry) ActionKeywords(action string) []string {
	return r.actions[action].Keywords
}

// MapKeywordToAction maps a free-form keyword to its canonical action.
// Returns "" when the keyword is unknown.
func (r *Registry) MapKeywordToAction(keyword string) string {
	return r.keywordToAction[strings.ToLower(keyword)]
}

// InferActionFromToolName infers the canonical action from a tool name
// by splitting on underscores and hyphens and checking each token
// against the keyword table. First hit wins; unknown names fall back to
// "execute" as the conservative default.
func (r *Registry) InferActionFromToolName(toolName string) string {
	normalized := strings.NewReplacer("-", " ", "_", " ").Replace(toolName)
	for _, part := range strings.Fields(normalized) {
		if action := r.MapKeywordToAction(part); action != "" {
			return action
		}
	}
	return "execute"
}

// InferResourceTypeFromToolName infers the canonical resource type from
// a tool name via substring keyword match. Unknown names default to
// "api". Candidate types are scanned in sorted order so the result is
// deterministic when keywords of several types occur in one name.
func (r *Registry) InferResourceTypeFromToolName(toolName string) string {
	lower := strings.ToLower(toolName)
	for _, resType := range sortedKeys(r.resourceTypes) {
		for _, kw := range r.resourceTypes[resType].Keywords {
			if strings.Contains(lower, kw) {
				return resType
			}
		}
	}
	return "api"
}

// ExtractionRules returns the extraction rules for a layer family.
func (r *Registry) ExtractionRules(familyID string) map[string]any {
	return r.extractionRules[familyID]
}

// Examples returns the example expectations for a layer family.
func (r *Registry) Examples(familyID string) map[string]any {
	return r.examples[familyID]
}

// AssembleAnchor builds the canonical slot string for the given fields
// by selecting the narrowest template variant whose placeholders are
// all populated. Field order in the output is fixed by the template.
func (r *Registry) AssembleAnchor(slot Slot, fields map[string]string) (string, error) {
	templates := r.templates[string(slot)]
	if templates == nil {
		return "", fmt.Errorf("vocab: no templates for slot %s", slot)
	}

	var variant string
	switch slot {
	case SlotAction:
		variant = "format"
		if _, ok := fields["tool_call"]; ok {
			variant = "with_tool_call"
		}
	case SlotResource:
		_, hasLocation := fields["resource_location"]
		_, hasName := fields["resource_name"]
		_, hasToolName := fields["tool_name"]
		_, hasToolMethod := fields["tool_method"]
		hasTool := hasToolName && hasToolMethod
		switch {
		case hasTool && hasLocation && hasName:
			variant = "full"
		case hasTool:
			variant = "with_tool"
		case hasName:
			variant = "with_name"
		case hasLocation:
			variant = "with_location"
		default:
			variant = "minimal"
		}
	case SlotData:
		variant = "base"
		if _, ok := fields["params_length"]; ok {
			variant = "with_params"
		}
	case SlotRisk:
		variant = "base"
		if _, ok := fields["rate_limit"]; ok {
			variant = "with_rate_limit"
		}
	default:
		return "", fmt.Errorf("vocab: unknown slot %q", slot)
	}

	tmpl, ok := templates[variant]
	if !ok {
		return "", fmt.Errorf("vocab: slot %s has no template variant %q", slot, variant)
	}
	return formatTemplate(tmpl, fields)
}

// formatTemplate substitutes every {placeholder} in tmpl from fields.
// An unresolved placeholder is an error: it means the caller selected a
// template without populating all of its fields.
func formatTemplate(tmpl string, fields map[string]string) (string, error) {
	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		close := strings.IndexByte(rest[open:], '}')
		if close < 0 {
			return "", fmt.Errorf("vocab: unterminated placeholder in template %q", tmpl)
		}
		close += open

		b.WriteString(rest[:open])
		key := rest[open+1 : close]
		value, ok := fields[key]
		if !ok {
			return "", fmt.Errorf("vocab: template field %q not populated", key)
		}
		b.WriteString(value)
		rest = rest[close+1:]
	}
}
