package encoder

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
	"github.com/Intent-Gate/Intentgate/internal/vector"
	"github.com/Intent-Gate/Intentgate/internal/vocab"
)

// paramsLengthThreshold splits canonical params into the short/long
// buckets of the vocabulary.
const paramsLengthThreshold = 100

// defaultLocation encodes resource anchors for boundaries that do not
// constrain location.
const defaultLocation = "unspecified"

// Encoder turns intent events and boundaries into vectors. Safe for
// concurrent use; the projection matrices are immutable after New and
// the embedding cache is internally synchronised.
type Encoder struct {
	vocab *vocab.Registry
	emb   Embedder
	cache *embedCache
	proj  *projections
}

// New builds an encoder. cacheSize bounds the embedding LRU; zero
// selects the default.
func New(reg *vocab.Registry, emb Embedder, cacheSize int) *Encoder {
	return &Encoder{
		vocab: reg,
		emb:   emb,
		cache: newEmbedCache(cacheSize),
		proj:  newProjections(),
	}
}

// CacheStats reports embedding cache hits and misses for metrics.
func (e *Encoder) CacheStats() (hits, misses int64) {
	return e.cache.stats()
}

// encodeSlot runs the full pipeline for one slot text: embed (through
// the cache), project with the slot's matrix, normalise.
func (e *Encoder) encodeSlot(ctx context.Context, slot int, text string) (vector.Slot, error) {
	key := cacheKey(text)
	embedding, ok := e.cache.get(key)
	if !ok {
		var err error
		embedding, err = e.emb.Embed(ctx, text)
		if err != nil {
			return vector.Slot{}, fmt.Errorf("embed slot %s: %w", boundary.SliceNames[slot], err)
		}
		if len(embedding) != EmbedDim {
			return vector.Slot{}, fmt.Errorf("embed slot %s: dimension %d, want %d",
				boundary.SliceNames[slot], len(embedding), EmbedDim)
		}
		e.cache.put(key, embedding)
	}
	return e.proj.project(slot, embedding), nil
}

// EncodeIntent builds the 128-d intent vector for an event: four slot
// texts assembled from the vocabulary templates, each encoded and
// written into its fixed position.
func (e *Encoder) EncodeIntent(ctx context.Context, ev *intent.Event) (vector.Intent, error) {
	texts, err := e.intentSlotTexts(ev)
	if err != nil {
		return vector.Intent{}, err
	}

	var out vector.Intent
	for slot, text := range texts {
		s, err := e.encodeSlot(ctx, slot, text)
		if err != nil {
			return vector.Intent{}, err
		}
		copy(out[slot*vector.SlotDim:(slot+1)*vector.SlotDim], s[:])
	}
	return out, nil
}

// intentSlotTexts assembles the four slot strings for an event.
// Unknown free-form values pass through to the embedding untouched;
// only boundary installation validates against the closed sets.
func (e *Encoder) intentSlotTexts(ev *intent.Event) ([4]string, error) {
	var texts [4]string

	actionFields := map[string]string{
		"action":     ev.Action,
		"actor_type": ev.Actor.Type,
	}
	if ev.ToolName != "" {
		call := ev.ToolName
		if ev.ToolMethod != "" {
			call += "." + ev.ToolMethod
		}
		actionFields["tool_call"] = call
	}

	resourceFields := map[string]string{
		"resource_type": ev.Resource.Type,
	}
	if ev.Resource.Location != "" {
		resourceFields["resource_location"] = ev.Resource.Location
	}
	if ev.Resource.Name != "" {
		resourceFields["resource_name"] = ev.Resource.Name
	}
	if ev.ToolName != "" && ev.ToolMethod != "" {
		resourceFields["tool_name"] = ev.ToolName
		resourceFields["tool_method"] = ev.ToolMethod
	}

	sensitivity := append([]string(nil), ev.Data.Sensitivity...)
	sort.Strings(sensitivity)
	dataFields := map[string]string{
		"sensitivity": strings.Join(sensitivity, ","),
		"pii":         strconv.FormatBool(ev.Data.PII != nil && *ev.Data.PII),
		"volume":      ev.Data.Volume,
	}
	if dataFields["volume"] == "" {
		dataFields["volume"] = "single"
	}
	if len(ev.ToolParams) > 0 {
		bucket := "short"
		if len(intent.CanonicalizeMap(ev.ToolParams)) > paramsLengthThreshold {
			bucket = "long"
		}
		dataFields["params_length"] = bucket
	}

	riskFields := map[string]string{
		"authn": ev.Risk.Authn,
	}
	if ev.RateLimit != nil {
		riskFields["rate_limit"] = fmt.Sprintf("%d_calls_per_%ds",
			ev.RateLimit.CallsLastMinute, ev.RateLimit.WindowSeconds)
	}

	fields := [4]map[string]string{actionFields, resourceFields, dataFields, riskFields}
	for slot, f := range fields {
		text, err := e.vocab.AssembleAnchor(vocab.Slots[slot], f)
		if err != nil {
			return texts, fmt.Errorf("assemble %s slot: %w", boundary.SliceNames[slot], err)
		}
		texts[slot] = text
	}
	return texts, nil
}

// EncodeBoundary builds the rule vector for a boundary: per slice the
// sorted cartesian anchor set, truncated at the row cap, each row
// encoded through the slot pipeline. Constraint values outside the
// vocabulary are a hard error since this is the write path.
func (e *Encoder) EncodeBoundary(ctx context.Context, b *boundary.Boundary) (*boundary.RuleVector, error) {
	if err := e.validateConstraints(b); err != nil {
		return nil, err
	}

	anchorTexts, err := e.anchorTexts(b)
	if err != nil {
		return nil, err
	}

	rv := &boundary.RuleVector{}
	for slot, texts := range anchorTexts {
		sort.Strings(texts)
		if len(texts) > vector.MaxAnchors {
			texts = texts[:vector.MaxAnchors]
		}
		for i, text := range texts {
			s, err := e.encodeSlot(ctx, slot, text)
			if err != nil {
				return nil, fmt.Errorf("boundary %s: %w", b.ID, err)
			}
			rv.Slices[slot].Matrix[i] = s
		}
		rv.Slices[slot].Count = len(texts)
	}
	return rv, nil
}

func (e *Encoder) validateConstraints(b *boundary.Boundary) error {
	for _, a := range b.Constraints.Action.Actions {
		if !e.vocab.IsValidAction(a) {
			return fmt.Errorf("%w: unknown action %q", boundary.ErrInvalidBoundary, a)
		}
	}
	for _, at := range b.Constraints.Action.ActorTypes {
		if !e.vocab.IsValidActorType(at) {
			return fmt.Errorf("%w: unknown actor type %q", boundary.ErrInvalidBoundary, at)
		}
	}
	for _, rt := range b.Constraints.Resource.Types {
		if !e.vocab.IsValidResourceType(rt) {
			return fmt.Errorf("%w: unknown resource type %q", boundary.ErrInvalidBoundary, rt)
		}
	}
	for _, s := range b.Constraints.Data.Sensitivity {
		if !e.vocab.IsValidSensitivity(s) {
			return fmt.Errorf("%w: unknown sensitivity %q", boundary.ErrInvalidBoundary, s)
		}
	}
	if v := b.Constraints.Data.Volume; v != "" && !e.vocab.IsValidVolume(v) {
		return fmt.Errorf("%w: unknown volume %q", boundary.ErrInvalidBoundary, v)
	}
	if !e.vocab.IsValidAuthnLevel(b.Constraints.Risk.Authn) {
		return fmt.Errorf("%w: unknown authn level %q", boundary.ErrInvalidBoundary, b.Constraints.Risk.Authn)
	}
	return nil
}

// anchorTexts expands each slice's constraints into anchor strings.
func (e *Encoder) anchorTexts(b *boundary.Boundary) ([4][]string, error) {
	var out [4][]string
	c := b.Constraints

	for _, action := range c.Action.Actions {
		for _, actorType := range c.Action.ActorTypes {
			text, err := e.vocab.AssembleAnchor(vocab.SlotAction, map[string]string{
				"action":     action,
				"actor_type": actorType,
			})
			if err != nil {
				return out, err
			}
			out[boundary.SliceAction] = append(out[boundary.SliceAction], text)
		}
	}

	locations := c.Resource.Locations
	if len(locations) == 0 {
		locations = []string{defaultLocation}
	}
	for _, resType := range c.Resource.Types {
		for _, loc := range locations {
			text, err := e.vocab.AssembleAnchor(vocab.SlotResource, map[string]string{
				"resource_type":     resType,
				"resource_location": loc,
			})
			if err != nil {
				return out, err
			}
			out[boundary.SliceResource] = append(out[boundary.SliceResource], text)
		}
		for _, name := range c.Resource.Names {
			text, err := e.vocab.AssembleAnchor(vocab.SlotResource, map[string]string{
				"resource_type": resType,
				"resource_name": name,
			})
			if err != nil {
				return out, err
			}
			out[boundary.SliceResource] = append(out[boundary.SliceResource], text)
		}
	}

	piiValues := []string{"false", "true"}
	if c.Data.PII != nil {
		piiValues = []string{strconv.FormatBool(*c.Data.PII)}
	}
	volumes := []string{"bulk", "single"}
	if c.Data.Volume != "" {
		volumes = []string{c.Data.Volume}
	}
	for _, sens := range c.Data.Sensitivity {
		for _, pii := range piiValues {
			for _, volume := range volumes {
				text, err := e.vocab.AssembleAnchor(vocab.SlotData, map[string]string{
					"sensitivity": sens,
					"pii":         pii,
					"volume":      volume,
				})
				if err != nil {
					return out, err
				}
				out[boundary.SliceData] = append(out[boundary.SliceData], text)
			}
		}
	}

	text, err := e.vocab.AssembleAnchor(vocab.SlotRisk, map[string]string{
		"authn": c.Risk.Authn,
	})
	if err != nil {
		return out, err
	}
	out[boundary.SliceRisk] = append(out[boundary.SliceRisk], text)

	return out, nil
}
