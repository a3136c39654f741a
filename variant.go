package amplitude

import (
	"encoding/json"

	experiment "github.com/amplitude/experiment-go-server/pkg/experiment"
)

// Variant is the treatment assigned to a flag for the fetched identity.
type Variant struct {
	// Key is the Amplitude variant key, e.g. "on", "off" or "treatment".
	Key string `json:"key,omitempty"`
	// Value is the variant value. It falls back to Key when Amplitude
	// returns no explicit value. The Unity mobile plugins report "control"
	// in that case instead; Key keeps the assigned variant visible.
	Value string `json:"value"`
	// Payload is the JSON-decoded payload configured for the variant, if any.
	// Variants handed out by the cache carry their own copy of the payload.
	Payload any `json:"payload"`
}

// VariantSet maps flag keys to the variants assigned by a single fetch.
// A VariantSet held by the cache is never modified after it is applied.
type VariantSet map[string]Variant

// newVariant converts an Amplitude SDK variant into a bridge [Variant].
// The payload is copied, so the result shares nothing with the SDK's maps.
func newVariant(v experiment.Variant) Variant {
	value := v.Value
	if value == "" {
		value = v.Key
	}
	return Variant{
		Key:     v.Key,
		Value:   value,
		Payload: clonePayload(v.Payload),
	}
}

// clone returns v with a deep copy of its payload.
func (v Variant) clone() Variant {
	v.Payload = clonePayload(v.Payload)
	return v
}

// clonePayload deep-copies the containers a decoded JSON payload is made of.
// Other values are immutable and returned as is.
func clonePayload(payload any) any {
	switch p := payload.(type) {
	case map[string]any:
		out := make(map[string]any, len(p))
		for k, v := range p {
			out[k] = clonePayload(v)
		}
		return out
	case []any:
		out := make([]any, len(p))
		for i, v := range p {
			out[i] = clonePayload(v)
		}
		return out
	default:
		return payload
	}
}

// newVariantSet copies the SDK result into a fresh [VariantSet].
// The copy keeps the cached snapshot independent of any map the adapter
// (or its remote evaluation cache) still holds.
func newVariantSet(variants map[string]experiment.Variant) VariantSet {
	set := make(VariantSet, len(variants))
	for flagKey, v := range variants {
		set[flagKey] = newVariant(v)
	}
	return set
}

// JSON returns the variant serialized as {"key","value","payload"}.
func (v Variant) JSON() (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// JSON returns the set serialized as an object of flag key to variant.
// A nil set serializes as {}.
func (s VariantSet) JSON() (string, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]Variant(s))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
