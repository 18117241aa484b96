package intent

import (
	"sort"
	"strings"
	"time"
)

// Response is the classifier's answer for one utterance, in the shape Wit.ai
// returns from its /message endpoint.
type Response struct {
	Text     string              `json:"text"`
	Intents  []Candidate         `json:"intents"`
	Entities map[string][]Entity `json:"entities"`
	Traits   map[string][]Trait  `json:"traits"`
}

// Candidate is one ranked intent.
type Candidate struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Entity is an extracted span with its resolved value.
type Entity struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name"`
	Role       string      `json:"role"`
	Body       string      `json:"body"`
	Confidence float64     `json:"confidence"`
	Type       string      `json:"type,omitempty"`
	Value      any         `json:"value,omitempty"`
	Unit       string      `json:"unit,omitempty"`
	Grain      string      `json:"grain,omitempty"`
	From       *Bound      `json:"from,omitempty"`
	To         *Bound      `json:"to,omitempty"`
	Normalized *Normalized `json:"normalized,omitempty"`
	Resolved   *Resolved   `json:"resolved,omitempty"`
}

// Bound is one end of an interval entity.
type Bound struct {
	Value string `json:"value"`
	Grain string `json:"grain"`
}

// Normalized carries a quantity converted to a base unit (seconds for
// durations).
type Normalized struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Resolved lists places a location entity resolved to.
type Resolved struct {
	Values []ResolvedValue `json:"values"`
}

// ResolvedValue is one resolved place.
type ResolvedValue struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	Coords struct {
		Lat  float64 `json:"lat"`
		Long float64 `json:"long"`
	} `json:"coords"`
}

// Trait is an utterance-level attribute such as wit$on_off.
type Trait struct {
	ID         string  `json:"id,omitempty"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Parse selects the highest-confidence intent in resp and converts its
// entities and traits into typed slots. It reports false when resp carries no
// intent.
func Parse(resp *Response) (Intent, bool) {
	if resp == nil || len(resp.Intents) == 0 {
		return Intent{}, false
	}
	top := resp.Intents[0]
	for _, c := range resp.Intents[1:] {
		if c.Confidence > top.Confidence {
			top = c
		}
	}
	if top.Name == "" {
		return Intent{}, false
	}

	in := Intent{
		Name:       top.Name,
		Confidence: top.Confidence,
		Slots:      make(map[string]SlotValue),
	}

	// Iterate keys in order so the best entity for a slot wins deterministically.
	keys := make([]string, 0, len(resp.Entities))
	for k := range resp.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		ents := resp.Entities[key]
		if len(ents) == 0 {
			continue
		}
		best := ents[0]
		for _, e := range ents[1:] {
			if e.Confidence > best.Confidence {
				best = e
			}
		}
		name := slotName(key, best.Role)
		if _, ok := in.Slots[name]; ok {
			continue
		}
		if v, ok := entityValue(best); ok {
			in.Slots[name] = v
		}
	}

	for key, traits := range resp.Traits {
		if len(traits) == 0 {
			continue
		}
		best := traits[0]
		for _, t := range traits[1:] {
			if t.Confidence > best.Confidence {
				best = t
			}
		}
		in.Slots[slotName(key, "")] = SlotValue{
			Kind: SlotEnum,
			Enum: strings.ToLower(best.Value),
			Raw:  best.Value,
		}
	}
	return in, true
}

// slotName derives the slot key: the role after ':' in "name:role" keys,
// otherwise the entity name without its "wit$" namespace.
func slotName(key, role string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 && i < len(key)-1 {
		key = key[i+1:]
	} else if role != "" {
		key = role
	}
	key = strings.TrimPrefix(key, "wit$")
	return strings.ToLower(key)
}

func entityValue(e Entity) (SlotValue, bool) {
	raw := e.Body

	if e.Resolved != nil && len(e.Resolved.Values) > 0 {
		rv := e.Resolved.Values[0]
		return SlotValue{
			Kind: SlotLocation,
			Loc:  Location{Name: rv.Name, Lat: rv.Coords.Lat, Long: rv.Coords.Long},
			Raw:  raw,
		}, true
	}

	if e.Type == "interval" && (e.From != nil || e.To != nil) {
		v := SlotValue{Kind: SlotDateTime, Raw: raw}
		if e.From != nil {
			if t, ok := parseTime(e.From.Value); ok {
				v.Time = t
				v.Grain = e.From.Grain
			}
		}
		if e.To != nil {
			if t, ok := parseTime(e.To.Value); ok {
				v.End = t
				if v.Grain == "" {
					v.Grain = e.To.Grain
				}
			}
		}
		if v.Time.IsZero() {
			v.Time, v.End = v.End, time.Time{}
		}
		return v, !v.Time.IsZero()
	}

	if e.Normalized != nil {
		return SlotValue{Kind: SlotNumber, Num: e.Normalized.Value, Raw: raw}, true
	}

	switch val := e.Value.(type) {
	case string:
		if e.Grain != "" {
			if t, ok := parseTime(val); ok {
				return SlotValue{Kind: SlotDateTime, Time: t, Grain: e.Grain, Raw: raw}, true
			}
		}
		return SlotValue{Kind: SlotString, Str: val, Raw: raw}, true
	case float64:
		return SlotValue{Kind: SlotNumber, Num: val, Raw: raw}, true
	case nil:
		if raw != "" {
			return SlotValue{Kind: SlotString, Str: raw, Raw: raw}, true
		}
	}
	return SlotValue{}, false
}

func parseTime(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s)
	return t, err == nil
}
