package opaque

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// registrationState is the transient server state of a registration exchange.
// It carries no secret material beyond the per-registration OPRF key, which
// is useless without the matching client upload.
type registrationState struct {
	Username string
	OPRFKey  []byte
}

// loginState is the transient server state of a login exchange: everything
// the finish step needs to verify the client, as plain bytes so it can be
// sealed into an envelope and carried by the client.
type loginState struct {
	Username          string
	UserPublicKey     []byte
	UserExchangeKey   []byte
	ServerExchangeKey []byte
	SharedSecret      []byte
}

// credentialRecord is the durable artifact derived from a password at
// registration ("password file"). The server's long-term private key is
// deliberately not part of it; it is configuration, injected at login.
type credentialRecord struct {
	UserID        []byte
	UserPublicKey []byte
	EnvU          []byte
	OPRFKey       []byte
}

func encodeState(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode exchange state: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeState(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrEnvelopeIntegrity, err)
	}
	return nil
}

func encodePasswordFile(rec *credentialRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode password file: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePasswordFile(data []byte) (*credentialRecord, error) {
	rec := &credentialRecord{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorruption, err)
	}
	if len(rec.UserPublicKey) == 0 || len(rec.OPRFKey) == 0 {
		return nil, fmt.Errorf("%w: missing fields", ErrStorageCorruption)
	}
	return rec, nil
}
