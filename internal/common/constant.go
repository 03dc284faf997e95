package common

// AccessTokenHeaderName is the HTTP header used to carry the access token on
// outbound requests.
const AccessTokenHeaderName = "access_token"

// ServerKeySeedSize is the length in bytes of the decoded server key seed.
const ServerKeySeedSize = 32
