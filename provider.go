package amplitude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	of "github.com/open-feature/go-sdk/openfeature"
)

// Provider is an OpenFeature provider that evaluates flags against the
// variants cached by a [Bridge].
//
// Variants belong to the identity of the last successful fetch, so the
// evaluation context passed to the evaluation methods is not used to pick
// variants. The context given to Init, if it identifies a user or device,
// triggers a fetch for that identity.
type Provider struct {
	bridge *Bridge

	mu    sync.RWMutex
	state of.State
}

var (
	_ of.FeatureProvider = (*Provider)(nil)
	_ of.StateHandler    = (*Provider)(nil)
)

const (
	providerNotReady = "Amplitude provider not ready"
	generalError     = "Amplitude general error"

	// variantKeyOff is the variant key returned by Amplitude when a user
	// is not included in a feature flag's rollout.
	variantKeyOff = "off"
)

// NewProvider creates a new [Provider] reading from bridge.
func NewProvider(bridge *Bridge) *Provider {
	return &Provider{
		bridge: bridge,
		state:  of.NotReadyState,
	}
}

// Init readies the provider. The bridge must already be initialized.
// If evalCtx carries a targeting key, user ID or device ID, Init fetches the
// variants for that identity and waits for the fetch to finish.
func (p *Provider) Init(evalCtx of.EvaluationContext) error {
	if !p.bridge.IsInitialized() {
		p.setState(of.ErrorState)
		return ErrNotInitialized
	}

	flat := flattenContext(evalCtx)
	if len(flat) > 0 {
		identity, err := identityFromContext(flat, p.bridge.config.getKeyMap())
		switch {
		case errors.Is(err, errNoIdentity):
			// Nothing to fetch for; serve whatever the bridge has cached.
		case err != nil:
			p.setState(of.ErrorState)
			return err
		default:
			if fetchErr := p.bridge.FetchAndWait(context.Background(), identity); fetchErr != nil {
				p.setState(of.ErrorState)
				return fetchErr
			}
		}
	}

	p.setState(of.ReadyState)
	return nil
}

// Shutdown marks the provider not ready. The bridge is owned by the caller
// and is left running.
func (p *Provider) Shutdown() {
	p.setState(of.NotReadyState)
}

func (p *Provider) setState(state of.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func (p *Provider) getState() of.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Hooks returns empty slice as provider does not have any hooks.
func (p *Provider) Hooks() []of.Hook {
	return []of.Hook{}
}

// Metadata returns value of Metadata (name of current service, exposed to openfeature sdk).
func (p *Provider) Metadata() of.Metadata {
	return of.Metadata{
		Name: "Amplitude",
	}
}

// payloadConverter turns the payload of a matched variant into T.
// use=false with a nil error means the default value applies.
type payloadConverter[T any] func(flag string, variant *Variant, defaultValue T) (value T, use bool, err error)

// resolve runs the lookup shared by every typed evaluation and hands the
// matched variant to convert.
func resolve[T any](ctx context.Context, p *Provider, flag string, defaultValue T, evalCtx of.FlattenedContext, convert payloadConverter[T]) (T, of.ProviderResolutionDetail) {
	variant, resErr := p.evaluateFlag(ctx, flag, evalCtx)
	if resErr != nil {
		return defaultValue, of.ProviderResolutionDetail{
			ResolutionError: *resErr,
			Reason:          of.ErrorReason,
		}
	}

	// nil variant indicates "off" - return default value
	if variant == nil {
		return defaultValue, of.ProviderResolutionDetail{Reason: of.DefaultReason}
	}

	value, use, err := convert(flag, variant, defaultValue)
	switch {
	case err != nil:
		return defaultValue, of.ProviderResolutionDetail{
			ResolutionError: of.NewTypeMismatchResolutionError(err.Error()),
			Reason:          of.ErrorReason,
		}
	case !use:
		return defaultValue, of.ProviderResolutionDetail{Reason: of.DefaultReason}
	}
	return value, of.ProviderResolutionDetail{
		Variant:      variant.Key,
		FlagMetadata: variantMetadata(variant),
	}
}

// BooleanEvaluation evaluates a boolean feature flag.
// If the payload is a boolean, that value is used. Otherwise any variant
// other than "off" means enabled.
func (p *Provider) BooleanEvaluation(ctx context.Context, flag string, defaultValue bool, evalCtx of.FlattenedContext) of.BoolResolutionDetail {
	value, detail := resolve(ctx, p, flag, defaultValue, evalCtx, boolPayload)
	return of.BoolResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}

// StringEvaluation evaluates a string feature flag.
// A string payload wins; otherwise the variant value is the string.
func (p *Provider) StringEvaluation(ctx context.Context, flag string, defaultValue string, evalCtx of.FlattenedContext) of.StringResolutionDetail {
	value, detail := resolve(ctx, p, flag, defaultValue, evalCtx, stringPayload)
	return of.StringResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}

// FloatEvaluation evaluates a float feature flag from a numeric payload.
func (p *Provider) FloatEvaluation(ctx context.Context, flag string, defaultValue float64, evalCtx of.FlattenedContext) of.FloatResolutionDetail {
	value, detail := resolve(ctx, p, flag, defaultValue, evalCtx, floatPayload)
	return of.FloatResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}

// IntEvaluation evaluates an integer feature flag from a numeric or
// numeric-string payload.
func (p *Provider) IntEvaluation(ctx context.Context, flag string, defaultValue int64, evalCtx of.FlattenedContext) of.IntResolutionDetail {
	value, detail := resolve(ctx, p, flag, defaultValue, evalCtx, intPayload)
	return of.IntResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}

// ObjectEvaluation evaluates an object/JSON feature flag. The payload is
// returned as decoded; a variant without payload yields the default value.
func (p *Provider) ObjectEvaluation(ctx context.Context, flag string, defaultValue any, evalCtx of.FlattenedContext) of.InterfaceResolutionDetail {
	value, detail := resolve(ctx, p, flag, defaultValue, evalCtx, objectPayload)
	return of.InterfaceResolutionDetail{Value: value, ProviderResolutionDetail: detail}
}

func boolPayload(_ string, variant *Variant, _ bool) (bool, bool, error) {
	if b, ok := variant.Payload.(bool); ok {
		return b, true, nil
	}
	return true, true, nil
}

func stringPayload(_ string, variant *Variant, _ string) (string, bool, error) {
	if s, ok := variant.Payload.(string); ok {
		return s, true, nil
	}
	return variant.Value, true, nil
}

func floatPayload(flag string, variant *Variant, _ float64) (float64, bool, error) {
	switch payload := variant.Payload.(type) {
	case float64:
		return payload, true, nil
	// The Amplitude SDK does not currently invoke `UseNumber` on the JSON decoder,
	// but if it starts doing it in the future we should handle it correctly.
	case json.Number:
		value, err := payload.Float64()
		return value, err == nil, err
	case nil:
		return 0, false, nil
	}
	return 0, false, payloadTypeError("FloatEvaluation", flag, variant.Payload)
}

func intPayload(flag string, variant *Variant, _ int64) (int64, bool, error) {
	switch payload := variant.Payload.(type) {
	// JSON numbers are decoded as float64.
	case float64:
		return int64(payload), true, nil
	case json.Number:
		value, err := payload.Int64()
		return value, err == nil, err
	// Large numbers are sometimes stored as strings to keep their precision.
	case string:
		value, err := strconv.ParseInt(payload, 10, 64)
		return value, err == nil, err
	case nil:
		return 0, false, nil
	}
	return 0, false, payloadTypeError("IntEvaluation", flag, variant.Payload)
}

func objectPayload(_ string, variant *Variant, defaultValue any) (any, bool, error) {
	if variant.Payload == nil {
		return defaultValue, true, nil
	}
	return variant.Payload, true, nil
}

func payloadTypeError(evaluation, flag string, payload any) error {
	return fmt.Errorf("%s type error for %s, payload is %T "+
		"(decoded from the JSON payload configured in the Amplitude console for this flag)",
		evaluation, flag, payload)
}

// evaluateFlag looks up the cached variant for flag.
// Returns nil variant (with no error) when the variant key is "off", indicating
// that the caller should use the default value.
// Returns a resolution error if something goes wrong.
func (p *Provider) evaluateFlag(_ context.Context, flag string, _ of.FlattenedContext) (*Variant, *of.ResolutionError) {
	if p.getState() != of.ReadyState {
		resErr := p.stateError()
		return nil, &resErr
	}

	variant, err := p.bridge.GetVariant(flag)
	if err != nil {
		resErr := of.NewGeneralResolutionError(err.Error())
		return nil, &resErr
	}
	if variant == nil {
		resErr := of.NewFlagNotFoundResolutionError(fmt.Sprintf("flag %s not found", flag))
		return nil, &resErr
	}

	// When variant key is "off", Amplitude indicates the user is not in the rollout.
	// Return nil to signal that the default value should be used.
	if variant.Key == variantKeyOff {
		return nil, nil
	}

	return variant, nil
}

// stateError returns the appropriate resolution error based on provider state.
func (p *Provider) stateError() of.ResolutionError {
	if p.getState() == of.NotReadyState {
		return of.NewProviderNotReadyResolutionError(providerNotReady)
	}
	return of.NewGeneralResolutionError(generalError)
}

// variantMetadata returns the standard metadata for a variant.
func variantMetadata(variant *Variant) map[string]any {
	return map[string]any{
		"key":   variant.Key,
		"value": variant.Value,
	}
}

// flattenContext flattens an evaluation context the way the OpenFeature SDK
// does before calling a provider.
func flattenContext(evalCtx of.EvaluationContext) of.FlattenedContext {
	flat := of.FlattenedContext{}
	for key, val := range evalCtx.Attributes() {
		flat[key] = val
	}
	if targetingKey := evalCtx.TargetingKey(); targetingKey != "" {
		flat[of.TargetingKey] = targetingKey
	}
	return flat
}
