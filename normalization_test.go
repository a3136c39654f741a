package amplitude

import (
	"reflect"
	"strings"
	"testing"

	"github.com/amplitude/experiment-go-server/pkg/experiment"
	of "github.com/open-feature/go-sdk/openfeature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyMap_ContainsExpectedMappings(t *testing.T) {
	keyMap := DefaultKeyMap()

	// Test that common variations all map to the correct canonical key
	tests := []struct {
		inputKey    string
		expectedKey Key
	}{
		// user_id variations
		{of.TargetingKey, KeyUserID},
		{"user_id", KeyUserID},
		{"userId", KeyUserID},
		{"user-id", KeyUserID},
		{"UserID", KeyUserID},

		// device_id variations
		{"device_id", KeyDeviceID},
		{"deviceId", KeyDeviceID},
		{"device-id", KeyDeviceID},
		{"DeviceID", KeyDeviceID},

		// Simple fields
		{"country", KeyCountry},
		{"Country", KeyCountry},
		{"platform", KeyPlatform},
		{"Platform", KeyPlatform},
		{"OS", KeyOs},

		// Fields with underscores
		{"device_manufacturer", KeyDeviceManufacturer},
		{"deviceManufacturer", KeyDeviceManufacturer},
		{"device-manufacturer", KeyDeviceManufacturer},

		// Fields ending in _ids
		{"cohort_ids", KeyCohortIDs},
		{"cohortIds", KeyCohortIDs},
		{"cohortIDs", KeyCohortIDs},
		{"cohort-ids", KeyCohortIDs},

		{"userProperties", KeyUserProperties},
	}

	for _, tt := range tests {
		t.Run(tt.inputKey, func(t *testing.T) {
			actual, ok := keyMap[tt.inputKey]
			require.True(t, ok, "key %q should exist in keyMap", tt.inputKey)
			assert.Equal(t, tt.expectedKey, actual, "key %q should map to %q", tt.inputKey, tt.expectedKey)
		})
	}
}

func TestIdentityFromContext(t *testing.T) {
	tests := []struct {
		name           string
		evalCtx        of.FlattenedContext
		expectedUserID string
		expectedDevice string
		expectedProps  map[string]any
		expectedFields map[Key]any
		expectError    error
		errorContains  string
	}{
		{
			name: "targeting key maps to user ID",
			evalCtx: of.FlattenedContext{
				of.TargetingKey: "user-123",
			},
			expectedUserID: "user-123",
		},
		{
			name: "user_id maps to user ID",
			evalCtx: of.FlattenedContext{
				"user_id": "user-456",
			},
			expectedUserID: "user-456",
		},
		{
			name: "device_id maps to device ID",
			evalCtx: of.FlattenedContext{
				"device_id": "device-789",
			},
			expectedDevice: "device-789",
		},
		{
			name: "both user ID and device ID",
			evalCtx: of.FlattenedContext{
				of.TargetingKey: "user-123",
				"device_id":     "device-456",
			},
			expectedUserID: "user-123",
			expectedDevice: "device-456",
		},
		{
			name: "non-string IDs are stringified",
			evalCtx: of.FlattenedContext{
				"user_id": 42,
			},
			expectedUserID: "42",
		},
		{
			name: "unknown keys go to user properties",
			evalCtx: of.FlattenedContext{
				of.TargetingKey: "user-123",
				"custom_prop":   "custom_value",
				"another_prop":  123,
			},
			expectedUserID: "user-123",
			expectedProps: map[string]any{
				"custom_prop":  "custom_value",
				"another_prop": 123,
			},
		},
		{
			name: "user properties map is merged",
			evalCtx: of.FlattenedContext{
				of.TargetingKey:  "user-123",
				"userProperties": map[string]any{"plan": "premium"},
				"level":          7,
			},
			expectedUserID: "user-123",
			expectedProps: map[string]any{
				"plan":  "premium",
				"level": 7,
			},
		},
		{
			name: "canonical fields are kept apart",
			evalCtx: of.FlattenedContext{
				of.TargetingKey: "user-123",
				"Country":       "US",
				"platform":      "iOS",
			},
			expectedUserID: "user-123",
			expectedFields: map[Key]any{
				KeyCountry:  "US",
				KeyPlatform: "iOS",
			},
		},
		{
			name: "user properties of the wrong type fail",
			evalCtx: of.FlattenedContext{
				of.TargetingKey:    "user-123",
				"user_properties": "plan=premium",
			},
			expectError:   ErrInvalidInput,
			errorContains: "must be a map[string]any",
		},
		{
			name:          "empty context fails - no user ID or device ID",
			evalCtx:       of.FlattenedContext{},
			expectError:   errNoIdentity,
			errorContains: "must contain",
		},
		{
			name: "only custom properties fails - no user ID or device ID",
			evalCtx: of.FlattenedContext{
				"custom_prop": "value",
			},
			expectError:   errNoIdentity,
			errorContains: "must contain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := identityFromContext(tt.evalCtx, DefaultKeyMap())

			if tt.expectError != nil {
				require.ErrorIs(t, err, tt.expectError)
				assert.ErrorIs(t, err, ErrInvalidInput)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedUserID, identity.UserID)
			assert.Equal(t, tt.expectedDevice, identity.DeviceID)
			for key, expectedVal := range tt.expectedProps {
				assert.EqualValues(t, expectedVal, identity.Properties[key])
			}
			for key, expectedVal := range tt.expectedFields {
				assert.EqualValues(t, expectedVal, identity.Fields[key])
			}
		})
	}
}

func TestIdentityFromContext_CustomKeyMap(t *testing.T) {
	keyMap := DefaultKeyMap()
	keyMap["player_id"] = KeyUserID

	identity, err := identityFromContext(of.FlattenedContext{"player_id": "p-1"}, keyMap)
	require.NoError(t, err)
	assert.Equal(t, "p-1", identity.UserID)
	assert.Empty(t, identity.Properties)
}

func TestIdentityFromContext_ToUser(t *testing.T) {
	cohorts := map[string]struct{}{"cohort-1": {}, "cohort-2": {}}
	evalCtx := of.FlattenedContext{
		of.TargetingKey:      "user-123",
		"deviceId":           "device-123",
		"Country":            "US",
		KeyRegion:            "CA",
		KeyCity:              "San Francisco",
		KeyLanguage:          "en",
		"Platform":           "iOS",
		KeyVersion:           "1.0.0",
		"OS":                 "iOS 16",
		KeyCarrier:           "Verizon",
		KeyLibrary:           "unity-bridge",
		"deviceManufacturer": "Apple",
		KeyDeviceBrand:       "Apple",
		KeyDeviceModel:       "iPhone 14",
		"tier":               "gold",
		"groupProperties":    map[string]map[string]any{"org": {"size": "large"}},
		KeyGroups:            map[string][]string{"org": {"acme"}},
		"cohortIds":          cohorts,
		KeyGroupCohortIDSet:  map[string]map[string]map[string]struct{}{"org": {"acme": cohorts}},
		KeyUserProperties:    map[string]any{"plan": "premium"},
	}

	identity, err := identityFromContext(evalCtx, DefaultKeyMap())
	require.NoError(t, err)
	user, err := identity.user()
	require.NoError(t, err)

	assert.Equal(t, &experiment.User{
		UserId:             "user-123",
		DeviceId:           "device-123",
		Country:            "US",
		Region:             "CA",
		City:               "San Francisco",
		Language:           "en",
		Platform:           "iOS",
		Version:            "1.0.0",
		Os:                 "iOS 16",
		Carrier:            "Verizon",
		Library:            "unity-bridge",
		DeviceManufacturer: "Apple",
		DeviceBrand:        "Apple",
		DeviceModel:        "iPhone 14",
		UserProperties:     map[string]any{"plan": "premium", "tier": "gold"},
		GroupProperties:    map[string]map[string]any{"org": {"size": "large"}},
		Groups:             map[string][]string{"org": {"acme"}},
		CohortIds:          cohorts,
		GroupCohortIds:     map[string]map[string]map[string]struct{}{"org": {"acme": cohorts}},
	}, user)
}

// getJSONTags extracts all JSON tag names from a struct type, including embedded structs.
func getJSONTags(t reflect.Type) map[string]bool {
	tags := make(map[string]bool)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return tags
	}

	for i := range t.NumField() {
		field := t.Field(i)

		if field.Anonymous {
			for k := range getJSONTags(field.Type) {
				tags[k] = true
			}
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}

		// Parse the tag to get just the name (before any comma options)
		tagName := strings.Split(jsonTag, ",")[0]
		if tagName != "" {
			tags[tagName] = true
		}
	}
	return tags
}

func TestDefaultKeyMap_CanonicalKeysMatchUserFields(t *testing.T) {
	// Identity.user relies on the canonical keys being the JSON names of the SDK user fields.
	userTags := getJSONTags(reflect.TypeOf(experiment.User{}))

	for alias, canonical := range DefaultKeyMap() {
		assert.True(t, userTags[string(canonical)],
			"alias %q maps to %q, which is not a field of experiment.User", alias, canonical)
	}
}
