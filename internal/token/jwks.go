package token

import (
	"encoding/base64"
	"math/big"
)

// JWK is a single RFC 7517 key description. Only RSA signing keys are
// represented here.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is the public key set served to resource servers.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKS returns the public view of the active signing key. The set is empty
// when symmetric signing is configured, since the shared secret must never
// be published.
func (i *Issuer) JWKS() JWKS {
	if i.publicKey == nil {
		return JWKS{Keys: []JWK{}}
	}
	return JWKS{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: i.keyID,
		N:   base64.RawURLEncoding.EncodeToString(i.publicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(i.publicKey.E)).Bytes()),
	}}}
}
