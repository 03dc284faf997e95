package opaque

import (
	"bytes"
	"crypto/hmac"
	"encoding"
	"fmt"

	"github.com/cretz/gopaque/gopaque"
	"go.dedis.ch/kyber/v3"
	"golang.org/x/crypto/hkdf"
)

// Driver wraps the gopaque OPAQUE primitive into four stateless protocol
// operations plus the legacy cleartext check. gopaque's own session objects
// keep their progress in unexported fields and cannot be rebuilt from bytes
// on the finish leg, so the driver performs the server half of each exchange
// through the library's exported steps (OPRF, SIGMA messages, suite crypto)
// and keeps only plain byte fields in its state structs.
type Driver struct {
	crypto gopaque.Crypto
	key    kyber.Scalar
}

// NewDriver derives the server's long-term key pair from the configured seed
// and prepares the default crypto suite. The same seed must be used for the
// whole lifetime of the stored password files.
func NewDriver(seed []byte) *Driver {
	c := gopaque.CryptoDefault
	key := c.NewKeyFromReader(hkdf.New(c.Hash, seed, nil, []byte("bindguard pake server key")))
	return &Driver{crypto: c, key: key}
}

func (d *Driver) serverPublicKey() kyber.Point {
	return d.crypto.Point().Mul(d.key, nil)
}

func (d *Driver) point(data []byte) (kyber.Point, error) {
	p := d.crypto.Point()
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: bad point encoding", ErrProtocol)
	}
	return p, nil
}

func (d *Driver) scalar(data []byte) (kyber.Scalar, error) {
	s := d.crypto.Scalar()
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: bad scalar encoding", ErrProtocol)
	}
	return s, nil
}

func marshalBinary(v encoding.BinaryMarshaler) ([]byte, error) {
	b, err := v.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal group element: %w", err)
	}
	return b, nil
}

// exchangeHash is the transcript hash both SIGMA signatures cover: the user
// ephemeral key followed by the server ephemeral key.
func (d *Driver) exchangeHash(userEph, serverEph kyber.Point) ([]byte, error) {
	h := d.crypto.Hash()
	ub, err := marshalBinary(userEph)
	if err != nil {
		return nil, err
	}
	sb, err := marshalBinary(serverEph)
	if err != nil {
		return nil, err
	}
	h.Write(ub)
	h.Write(sb)
	return h.Sum(nil), nil
}

// exchangeMAC authenticates a party's static public key under a key derived
// from the Diffie-Hellman shared secret, exactly as gopaque's embedded SIGMA
// exchange derives it ("sigma-mac" discriminator), so the driver stays wire
// compatible with gopaque's client side.
func (d *Driver) exchangeMAC(shared, target kyber.Point) ([]byte, error) {
	ssb, err := marshalBinary(shared)
	if err != nil {
		return nil, err
	}
	parent := d.crypto.NewKeyFromReader(bytes.NewReader(ssb))
	macKey := d.crypto.DeriveKey(parent, []byte("sigma-mac"))
	kb, err := marshalBinary(macKey)
	if err != nil {
		return nil, err
	}
	tb, err := marshalBinary(target)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(d.crypto.Hash, kb)
	mac.Write(tb)
	return mac.Sum(nil), nil
}

// RegistrationStart consumes the client's registration init message and
// produces the server response plus the transient state the finish step
// needs. It never touches storage.
func (d *Driver) RegistrationStart(username string, clientMsg []byte) ([]byte, *registrationState, error) {
	var init gopaque.UserRegisterInit
	if err := init.FromBytes(d.crypto, clientMsg); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if !bytes.Equal(init.UserID, []byte(username)) {
		return nil, nil, fmt.Errorf("%w: user identity mismatch", ErrProtocol)
	}

	oprfKey := d.crypto.Scalar().Pick(d.crypto.RandomStream())
	v, beta := gopaque.OPRFServerStep2(d.crypto, init.Alpha, oprfKey)

	resp := &gopaque.ServerRegisterInit{ServerPublicKey: d.serverPublicKey(), V: v, Beta: beta}
	out, err := resp.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal registration response: %w", err)
	}
	kb, err := marshalBinary(oprfKey)
	if err != nil {
		return nil, nil, err
	}
	return out, &registrationState{Username: username, OPRFKey: kb}, nil
}

// RegistrationFinish turns the client's upload into a password file. The
// password itself never appears here; only the blinded artifacts do.
func (d *Driver) RegistrationFinish(state *registrationState, upload []byte) ([]byte, error) {
	var complete gopaque.UserRegisterComplete
	if err := complete.FromBytes(d.crypto, upload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	userPub, err := marshalBinary(complete.UserPublicKey)
	if err != nil {
		return nil, err
	}
	return encodePasswordFile(&credentialRecord{
		UserID:        []byte(state.Username),
		UserPublicKey: userPub,
		EnvU:          complete.EnvU,
		OPRFKey:       state.OPRFKey,
	})
}

// LoginStart runs the server side of the credential request. A nil file is
// legal and mandatory to support: the driver then synthesizes a throwaway
// record of genuine shape so unknown users get a structurally identical
// response and only the finish step can fail.
func (d *Driver) LoginStart(username string, file []byte, clientMsg []byte) ([]byte, *loginState, error) {
	var init gopaque.UserAuthInit
	if err := init.FromBytes(d.crypto, clientMsg); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if !bytes.Equal(init.UserID, []byte(username)) {
		return nil, nil, fmt.Errorf("%w: user identity mismatch", ErrProtocol)
	}

	var rec *credentialRecord
	var err error
	if file == nil {
		rec, err = d.fakeRecord(username)
	} else {
		rec, err = decodePasswordFile(file)
	}
	if err != nil {
		return nil, nil, err
	}

	oprfKey := d.crypto.Scalar()
	if err := oprfKey.UnmarshalBinary(rec.OPRFKey); err != nil {
		return nil, nil, fmt.Errorf("%w: bad OPRF key", ErrStorageCorruption)
	}
	v, beta := gopaque.OPRFServerStep2(d.crypto, init.Alpha, oprfKey)

	if len(init.EmbeddedKeyExchangeMessage1) == 0 {
		return nil, nil, fmt.Errorf("%w: missing key exchange message", ErrProtocol)
	}
	var msg1 gopaque.KeyExchangeSigmaMsg1
	if err := msg1.FromBytes(d.crypto, init.EmbeddedKeyExchangeMessage1); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	eph := d.crypto.NewKey(nil)
	ephPub := d.crypto.Point().Mul(eph, nil)
	shared := d.crypto.Point().Mul(eph, msg1.UserExchangePublicKey)

	hashToSign, err := d.exchangeHash(msg1.UserExchangePublicKey, ephPub)
	if err != nil {
		return nil, nil, err
	}
	sig, err := d.crypto.Sign(d.key, hashToSign)
	if err != nil {
		return nil, nil, fmt.Errorf("sign key exchange: %w", err)
	}
	mac, err := d.exchangeMAC(shared, d.serverPublicKey())
	if err != nil {
		return nil, nil, err
	}

	msg2 := &gopaque.KeyExchangeSigmaMsg2{
		ServerExchangePublicKey: ephPub,
		ServerExchangeSig:       sig,
		ServerExchangeMac:       mac,
	}
	m2, err := msg2.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal key exchange message: %w", err)
	}
	resp := &gopaque.ServerAuthComplete{
		ServerPublicKey:             d.serverPublicKey(),
		EnvU:                        rec.EnvU,
		V:                           v,
		Beta:                        beta,
		EmbeddedKeyExchangeMessage2: m2,
	}
	out, err := resp.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal credential response: %w", err)
	}

	userEph, err := marshalBinary(msg1.UserExchangePublicKey)
	if err != nil {
		return nil, nil, err
	}
	serverEph, err := marshalBinary(ephPub)
	if err != nil {
		return nil, nil, err
	}
	ssb, err := marshalBinary(shared)
	if err != nil {
		return nil, nil, err
	}
	state := &loginState{
		Username:          username,
		UserPublicKey:     rec.UserPublicKey,
		UserExchangeKey:   userEph,
		ServerExchangeKey: serverEph,
		SharedSecret:      ssb,
	}
	return out, state, nil
}

// LoginFinish verifies the client's finalization against the transient
// state. This is the sole authentication decision point of the PAKE path:
// a client that did not hold the right password cannot produce a valid
// signature and MAC here. The returned shared secret belongs to the caller,
// which is expected to discard it.
func (d *Driver) LoginFinish(state *loginState, clientMsg []byte) ([]byte, error) {
	var complete gopaque.UserAuthComplete
	if err := complete.FromBytes(d.crypto, clientMsg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if len(complete.EmbeddedKeyExchangeMessage3) == 0 {
		return nil, fmt.Errorf("%w: missing key exchange message", ErrProtocol)
	}
	var msg3 gopaque.KeyExchangeSigmaMsg3
	if err := msg3.FromBytes(d.crypto, complete.EmbeddedKeyExchangeMessage3); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	userPub, err := d.point(state.UserPublicKey)
	if err != nil {
		return nil, err
	}
	userEph, err := d.point(state.UserExchangeKey)
	if err != nil {
		return nil, err
	}
	serverEph, err := d.point(state.ServerExchangeKey)
	if err != nil {
		return nil, err
	}
	shared, err := d.point(state.SharedSecret)
	if err != nil {
		return nil, err
	}

	hashToSign, err := d.exchangeHash(userEph, serverEph)
	if err != nil {
		return nil, err
	}
	if err := d.crypto.Verify(userPub, hashToSign, msg3.UserExchangeSig); err != nil {
		return nil, fmt.Errorf("%w: signature verification failed", ErrProtocol)
	}
	expected, err := d.exchangeMAC(shared, userPub)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(msg3.UserExchangeMac, expected) {
		return nil, fmt.Errorf("%w: MAC verification failed", ErrProtocol)
	}
	return state.SharedSecret, nil
}

// CheckCleartext runs a full client+server login exchange in process using a
// cleartext password. Only the simple-bind compatibility path uses it. Any
// error from any step fails the check; there is no partial success.
func (d *Driver) CheckCleartext(file []byte, password, username string) error {
	user := gopaque.NewUserAuth(d.crypto, []byte(username), gopaque.NewKeyExchangeSigma(d.crypto))
	init, err := user.Init([]byte(password))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	initMsg, err := init.ToBytes()
	if err != nil {
		return fmt.Errorf("marshal auth init: %w", err)
	}

	serverMsg, state, err := d.LoginStart(username, file, initMsg)
	if err != nil {
		return err
	}
	var authComplete gopaque.ServerAuthComplete
	if err := authComplete.FromBytes(d.crypto, serverMsg); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	_, userComplete, err := user.Complete(&authComplete)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if userComplete == nil {
		return fmt.Errorf("%w: key exchange did not complete", ErrProtocol)
	}
	completeMsg, err := userComplete.ToBytes()
	if err != nil {
		return fmt.Errorf("marshal auth complete: %w", err)
	}
	if _, err := d.LoginFinish(state, completeMsg); err != nil {
		return err
	}
	return nil
}

// fakeRecord builds a credential record of genuine shape for users that do
// not exist or have no password file. Its envelope encrypts plausible
// contents under a throwaway key, so response size matches the real case.
func (d *Driver) fakeRecord(username string) (*credentialRecord, error) {
	oprfKey := d.crypto.Scalar().Pick(d.crypto.RandomStream())
	kb, err := marshalBinary(oprfKey)
	if err != nil {
		return nil, err
	}
	decoy := d.crypto.NewKey(nil)
	decoyPub, err := marshalBinary(d.crypto.Point().Mul(decoy, nil))
	if err != nil {
		return nil, err
	}
	db, err := marshalBinary(decoy)
	if err != nil {
		return nil, err
	}
	spb, err := marshalBinary(d.serverPublicKey())
	if err != nil {
		return nil, err
	}
	envU, err := d.crypto.AuthEncrypt(d.crypto.NewKey(nil), append(db, spb...))
	if err != nil {
		return nil, fmt.Errorf("build decoy envelope: %w", err)
	}
	return &credentialRecord{
		UserID:        []byte(username),
		UserPublicKey: decoyPub,
		EnvU:          envU,
		OPRFKey:       kb,
	}, nil
}
