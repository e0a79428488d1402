package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	keysRelayURL string
	keysToken    string
	keysIdentity string
)

var uploadKeyCmd = &cobra.Command{
	Use:   "upload-key",
	Short: "Upload this identity's public key to a relay",
	RunE:  runUploadKey,
}

var getKeyCmd = &cobra.Command{
	Use:   "get-key <userId>",
	Short: "Fetch a user's uploaded public identity key from a relay",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetKey,
}

func init() {
	rootCmd.AddCommand(uploadKeyCmd)
	rootCmd.AddCommand(getKeyCmd)

	for _, c := range []*cobra.Command{uploadKeyCmd, getKeyCmd} {
		c.Flags().StringVar(&keysRelayURL, "relay", "http://127.0.0.1:8443", "relay base URL")
		c.Flags().StringVar(&keysToken, "token", "", "bearer token the relay's authenticator accepts")
		_ = c.MarkFlagRequired("token")
	}
	uploadKeyCmd.Flags().StringVar(&keysIdentity, "identity", "identity.pem", "path to this identity's PEM key file (created if missing)")
	uploadKeyCmd.Flags().StringVar(&chatSelfID, "self", "", "this user's id (must match the bearer token's subject)")
	_ = uploadKeyCmd.MarkFlagRequired("self")
}

func runUploadKey(cmd *cobra.Command, args []string) error {
	identity, err := loadOrCreateIdentity(keysIdentity)
	if err != nil {
		return err
	}
	pub, err := publicJWK(identity)
	if err != nil {
		return err
	}
	rest := newRelayClient(keysRelayURL, keysToken)
	if err := rest.UploadKey(context.Background(), chatSelfID, pub); err != nil {
		return err
	}
	fmt.Printf("uploaded public key for %s\n", chatSelfID)
	return nil
}

func runGetKey(cmd *cobra.Command, args []string) error {
	rest := newRelayClient(keysRelayURL, keysToken)
	pub, err := rest.GetKey(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: kty=%s crv=%s x=%s y=%s\n", args[0], pub.Kty, pub.Crv, pub.X, pub.Y)
	return nil
}
