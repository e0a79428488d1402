package main

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sagecrypto "github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/crypto/keys"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new P-256 identity key pair",
	Long: `Generates the long-lived ECDSA P-256 identity key pair (§3's
"Identity keypair") used to sign KEP handshakes, and writes it to a PEM
file. The public half must still be uploaded to a relay with
"upload-key" before a peer can verify handshakes from this identity.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "identity.pem", "output PEM file")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	identity, err := keys.GenerateP256SignerKeyPair()
	if err != nil {
		return fmt.Errorf("generate identity key: %w", err)
	}
	if err := saveIdentity(identity, keygenOut); err != nil {
		return err
	}
	fmt.Printf("Identity key written to %s\n", keygenOut)
	fmt.Printf("  User ID (content address): %s\n", identity.ID())
	return nil
}

// saveIdentity PEM-encodes the private key as an EC PRIVATE KEY block, the
// same on-disk shape a TLS toolchain would produce for a P-256 key, so the
// file can be inspected with any standard PEM tooling.
func saveIdentity(identity sagecrypto.SignerKeyPair, path string) error {
	priv, ok := identity.PrivateKey().(*ecdsa.PrivateKey)
	if !ok {
		return fmt.Errorf("identity: unexpected private key type %T", identity.PrivateKey())
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal identity key: %w", err)
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0600)
}

// loadIdentity reads back an identity key written by saveIdentity.
func loadIdentity(path string) (sagecrypto.SignerKeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, fmt.Errorf("identity file %s is not a PEM EC private key", path)
	}
	priv, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse identity key: %w", err)
	}
	return keys.NewP256SignerKeyPair(priv)
}

// loadOrCreateIdentity loads path if it exists, otherwise generates and
// persists a fresh identity key there.
func loadOrCreateIdentity(path string) (sagecrypto.SignerKeyPair, error) {
	if _, err := os.Stat(path); err == nil {
		return loadIdentity(path)
	}
	identity, err := keys.GenerateP256SignerKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}
	if err := saveIdentity(identity, path); err != nil {
		return nil, err
	}
	return identity, nil
}
