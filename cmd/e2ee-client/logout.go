package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	logoutRelayURL string
	logoutToken    string
	logoutSelfID   string
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Deactivate this user's sessions on a relay",
	Long: `logout asks the relay to cascade-delete every session row this
user participates in (§9's deactivation cascade). It only tears down
relay-side state; a concurrently running "chat" process zeroizes its
own local session on exit independently.`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	logoutCmd.Flags().StringVar(&logoutRelayURL, "relay", "http://127.0.0.1:8443", "relay base URL")
	logoutCmd.Flags().StringVar(&logoutToken, "token", "", "bearer token the relay's authenticator accepts")
	logoutCmd.Flags().StringVar(&logoutSelfID, "self", "", "this user's id (must match the bearer token's subject)")
	_ = logoutCmd.MarkFlagRequired("token")
	_ = logoutCmd.MarkFlagRequired("self")
}

func runLogout(cmd *cobra.Command, args []string) error {
	rest := newRelayClient(logoutRelayURL, logoutToken)
	removed, err := rest.DeactivateUser(context.Background(), logoutSelfID)
	if err != nil {
		return err
	}
	fmt.Printf("deactivated %s: %d session(s) removed\n", logoutSelfID, removed)
	return nil
}
