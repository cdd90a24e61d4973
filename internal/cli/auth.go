package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newLoginURLCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login-url",
		Short: "Print the authorization URL to open in a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAppID(); err != nil {
				return err
			}
			scope, _ := cmd.Flags().GetString("scope")
			if !cmd.Flags().Changed("scope") {
				scope = a.cfg.Scope
			}
			state, _ := cmd.Flags().GetString("state")
			if state == "" {
				state = uuid.NewString()
			}

			sdk, err := a.openSDK()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sdk.LoginURL(scope, state))
			return nil
		},
	}
	cmd.Flags().String("scope", "", "Comma separated permission scope (e.g. offline,wall)")
	cmd.Flags().String("state", "", "Opaque state echoed back with the code (default random)")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange an authorization code for an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireAppID(); err != nil {
				return err
			}
			code, _ := cmd.Flags().GetString("code")
			if code == "" {
				return errors.New("authorization code is required (use --code)")
			}

			sdk, err := a.openSDK()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := sdk.LoginWithCode(ctx, code); err != nil {
				return err
			}
			userID, err := sdk.UserID(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[+] Logged in as user %s\n", userID)
			return nil
		},
	}
	cmd.Flags().String("code", "", "Code received on the redirect URI")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored access token",
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store an access token and user id obtained elsewhere",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				return errors.New("access token is required (use --token)")
			}
			userID, _ := cmd.Flags().GetString("user-id")

			sdk, err := a.openSDK()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := sdk.SetAccessToken(ctx, token); err != nil {
				return err
			}
			if userID != "" {
				if err := sdk.SetUserID(ctx, userID); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "[+] Token stored")
			return nil
		},
	}
	setCmd.Flags().String("token", "", "Access token")
	setCmd.Flags().String("user-id", "", "User id the token belongs to")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored access token and user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, err := a.openSDK()
			if err != nil {
				return err
			}
			tok, err := sdk.Token(cmd.Context())
			if err != nil {
				return err
			}
			if tok.AccessToken == "" {
				return errNotLoggedIn
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "access_token: %s\n", tok.AccessToken)
			fmt.Fprintf(out, "user_id:      %v\n", tok.Extra("user_id"))
			if !tok.Expiry.IsZero() {
				fmt.Fprintf(out, "expires:      %s\n", tok.Expiry.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	tokenCmd.AddCommand(setCmd, showCmd)
	return tokenCmd
}

var errNotLoggedIn = errors.New("not logged in (run login or token set first)")

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token and user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, err := a.openSDK()
			if err != nil {
				return err
			}
			if err := sdk.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "[+] Logged out")
			return nil
		},
	}
}
