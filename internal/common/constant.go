// Package common contains shared constants and sentinel errors used across
// the client, the token storage, and the development server.
package common

// Header names stamped on outbound API requests.
const (
	AuthorizationHeaderName    = "Authorization"
	RequestTimestampHeaderName = "X-Request-Timestamp"
	RequestIDHeaderName        = "X-Request-ID"
	DeviceIDHeaderName         = "X-Device-ID"
	AppVersionHeaderName       = "X-App-Version"
)

// Storage keys for the persisted token triple.
const (
	AccessTokenKey  = "auth.access_token"
	RefreshTokenKey = "auth.refresh_token"
	TokenExpiryKey  = "auth.token_expiry"
)

// AppVersion is reported in the X-App-Version header.
const AppVersion = "1.0.0"

// DeviceIDKey stores the generated device identifier next to the tokens.
const DeviceIDKey = "device.id"
