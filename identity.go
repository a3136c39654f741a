package amplitude

import (
	"encoding/json"
	"fmt"
	"strings"

	experiment "github.com/amplitude/experiment-go-server/pkg/experiment"
)

// Identity is the user a fetch assigns variants for.
// It lives only as long as the fetch request that carries it.
type Identity struct {
	// UserID is optional.
	UserID string
	// DeviceID is optional.
	DeviceID string
	// Properties become the Amplitude user properties.
	Properties map[string]any
	// Fields holds other canonical Amplitude user fields (country, platform,
	// groups...). UserID, DeviceID and Properties take precedence over the
	// same keys here.
	Fields map[Key]any
}

// ParseIdentity builds an [Identity] from the primitive values received at
// the bridge boundary. Empty strings mean "not set". userPropertiesJSON must
// be empty, "null" or a JSON object; anything else fails with [ErrInvalidInput].
func ParseIdentity(userID, deviceID, userPropertiesJSON string) (Identity, error) {
	identity := Identity{
		UserID:   userID,
		DeviceID: deviceID,
	}

	raw := strings.TrimSpace(userPropertiesJSON)
	if raw == "" || raw == "null" {
		return identity, nil
	}

	var properties map[string]any
	if err := json.Unmarshal([]byte(raw), &properties); err != nil {
		return Identity{}, fmt.Errorf("%w: failed to parse user properties JSON: %v", ErrInvalidInput, err)
	}
	identity.Properties = properties
	return identity, nil
}

// user converts the identity to the Amplitude SDK user.
// Canonical keys match the JSON field names of [experiment.User], so the
// conversion goes through JSON and lets the SDK type decide the field types.
func (i Identity) user() (*experiment.User, error) {
	userMap := make(map[Key]any, len(i.Fields)+3)
	for key, val := range i.Fields {
		userMap[key] = val
	}
	if i.UserID != "" {
		userMap[KeyUserID] = i.UserID
	}
	if i.DeviceID != "" {
		userMap[KeyDeviceID] = i.DeviceID
	}
	if len(i.Properties) > 0 {
		userMap[KeyUserProperties] = i.Properties
	}

	userMapJSON, err := json.Marshal(userMap)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal user map: %v", ErrInvalidInput, err)
	}

	var user experiment.User
	if err := json.Unmarshal(userMapJSON, &user); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal user map: %v", ErrInvalidInput, err)
	}
	return &user, nil
}
