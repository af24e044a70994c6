package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stakevault/cmd/internal/passphrase"
	"stakevault/crypto"
	"stakevault/rpc"
)

// passphraseFor is swapped in tests.
var passphraseFor = func(confirm bool) (string, error) {
	src := passphrase.NewSource(walletPassEnv, "wallet keystore")
	if confirm {
		src = src.WithConfirmation()
	}
	return src.Get()
}

func runKeygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "wallet.keystore", "keystore file to create")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists; pass -force to overwrite", *out)
	}
	pass, err := passphraseFor(true)
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Address: %s\nKeystore: %s\n", key.PubKey().Address(), *out)
	return nil
}

func loadAccount(path string) (crypto.Address, error) {
	if strings.TrimSpace(path) == "" {
		return crypto.Address{}, errors.New("-keystore is required")
	}
	pass, err := passphraseFor(false)
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("open keystore: %w", err)
	}
	return key.PubKey().Address(), nil
}

func runAddress(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := loadAccount(*keystorePath)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, addr)
	return nil
}

// runToken mints a bearer token locally. The node operator shares the HMAC
// secret with trusted tooling; the keystore proves which account it is for.
func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "keystore file of the token subject")
	secretEnv := fs.String("secret-env", "VAULT_JWT_SECRET", "environment variable holding the HMAC secret")
	issuer := fs.String("issuer", "stakevault", "token issuer")
	audience := fs.String("audience", "", "comma separated audiences")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("%s is not set", *secretEnv)
	}
	addr, err := loadAccount(*keystorePath)
	if err != nil {
		return err
	}
	var aud []string
	for _, entry := range strings.Split(*audience, ",") {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			aud = append(aud, trimmed)
		}
	}
	token, err := rpc.IssueToken([]byte(secret), *issuer, aud, addr, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
