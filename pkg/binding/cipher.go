package binding

import (
	"encoding/json"

	jose "github.com/go-jose/go-jose/v4"

	apperrors "github.com/mosip/esignet-binding/pkg/errors"
)

// EncryptBindingID encrypts a wallet binding id to the holder's public key
// as a compact JWE (RSA-OAEP-256 key wrap, A256GCM content encryption,
// cty JWT). The recipient key is the same JWK submitted in the bind
// request, so only the holder of the bound key can recover the id.
func EncryptBindingID(walletBindingID string, recipientJWK map[string]any) (string, error) {
	raw, err := json.Marshal(recipientJWK)
	if err != nil {
		return "", apperrors.New(apperrors.ErrFailedToCreateJWE, "failed to encode recipient key", err)
	}
	var key jose.JSONWebKey
	if err := key.UnmarshalJSON(raw); err != nil {
		return "", apperrors.New(apperrors.ErrFailedToCreateJWE, "failed to parse recipient key", err)
	}
	if !key.Valid() || !key.IsPublic() {
		return "", apperrors.NewWithCode(apperrors.ErrFailedToCreateJWE)
	}

	opts := (&jose.EncrypterOptions{}).WithContentType("JWT")
	encrypter, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{
		Algorithm: jose.RSA_OAEP_256,
		Key:       key.Key,
		KeyID:     key.KeyID,
	}, opts)
	if err != nil {
		return "", apperrors.New(apperrors.ErrFailedToCreateJWE, "failed to create encrypter", err)
	}

	obj, err := encrypter.Encrypt([]byte(walletBindingID))
	if err != nil {
		return "", apperrors.New(apperrors.ErrFailedToCreateJWE, "failed to encrypt binding id", err)
	}
	serialized, err := obj.CompactSerialize()
	if err != nil {
		return "", apperrors.New(apperrors.ErrFailedToCreateJWE, "failed to serialize JWE", err)
	}
	return serialized, nil
}
