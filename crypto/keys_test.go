package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	addr := DeriveAddress(AccountPrefix, "alice")
	encoded := addr.String()
	require.Contains(t, encoded, "inj1")

	decoded, err := ParseAddress(encoded, AccountPrefix)
	require.NoError(t, err)
	require.True(t, decoded.Equal(addr))

	_, err = ParseAddress(encoded, ValidatorPrefix)
	require.Error(t, err)
}

func TestAddressOrdering(t *testing.T) {
	a := NewAddress(ValidatorPrefix, append(make([]byte, 19), 0x01))
	b := NewAddress(ValidatorPrefix, append(make([]byte, 19), 0x02))
	require.Negative(t, a.Compare(b))
	require.Zero(t, a.Compare(a))
	require.True(t, Address{}.IsZero())
	require.Equal(t, "", Address{}.String())
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, SaveToKeystore(path, key, "passphrase"))

	loaded, err := LoadFromKeystore(path, "passphrase")
	require.NoError(t, err)
	require.True(t, loaded.PubKey().Address().Equal(key.PubKey().Address()))

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestKeystoreUsesStandardScrypt(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, SaveToKeystore(path, key, "passphrase"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Crypto struct {
			KDF       string `json:"kdf"`
			KDFParams struct {
				N int `json:"n"`
				P int `json:"p"`
			} `json:"kdfparams"`
		} `json:"crypto"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, "scrypt", doc.Crypto.KDF)
	require.Equal(t, keystore.StandardScryptN, doc.Crypto.KDFParams.N)
	require.Equal(t, keystore.StandardScryptP, doc.Crypto.KDFParams.P)
}
