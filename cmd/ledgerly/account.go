package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmynk/ledgerly/internal/config"
	"github.com/mmynk/ledgerly/internal/remote"
	"github.com/mmynk/ledgerly/pkg/api"
)

var (
	displayName string
)

func readPassword() (string, error) {
	if p := os.Getenv("LEDGERLY_PASSWORD"); p != "" {
		return p, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// signIn persists an account session, keeping the last sync time when the
// same user signs in again.
func signIn(s api.Session) error {
	prev, err := config.LoadSession(cfg.SessionPath)
	if err != nil {
		return err
	}
	next := config.Session{UserID: s.UserID, Email: s.Email, Token: s.Token}
	if prev.UserID == s.UserID {
		next.LastSync = prev.LastSync
	}
	if err := config.SaveSession(cfg.SessionPath, next); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", s.Email)
	return nil
}

var registerCmd = &cobra.Command{
	Use:     "register EMAIL",
	GroupID: "account",
	Short:   "Create an account on the record server",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		client := remote.NewAuthClient(http.DefaultClient, cfg.RemoteURL)
		s, err := client.Register(cmd.Context(), api.Credentials{
			Email:       args[0],
			Password:    password,
			DisplayName: displayName,
		})
		if err != nil {
			return err
		}
		return signIn(s)
	},
}

var loginCmd = &cobra.Command{
	Use:     "login EMAIL",
	GroupID: "account",
	Short:   "Sign in to the record server",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword()
		if err != nil {
			return err
		}
		client := remote.NewAuthClient(http.DefaultClient, cfg.RemoteURL)
		s, err := client.Login(cmd.Context(), api.Credentials{Email: args[0], Password: password})
		if err != nil {
			return err
		}
		return signIn(s)
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "account",
	Short:   "Sign out; local data stays on this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ClearSession(cfg.SessionPath); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil
	},
}

var guestCmd = &cobra.Command{
	Use:     "guest",
	GroupID: "account",
	Short:   "Use ledgerly without an account; sync is disabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveSession(cfg.SessionPath, config.Session{Guest: true}); err != nil {
			return err
		}
		fmt.Println("Guest mode: data stays on this device")
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&displayName, "name", "", "display name")
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, guestCmd)
}
