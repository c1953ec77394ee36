package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aura/internal/auth"
	"aura/internal/session"
)

var loginEmail string

// loginCmd signs in and stores the session
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to your AURA account",
	Long: `Signs in with email and password. The password is read without echo.

The session is stored locally so later commands and the chat screen
use your account.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// logoutCmd forgets the stored session
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

// whoamiCmd shows the signed-in user
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show who you are signed in as",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

// signupCmd registers a new account
var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an AURA account",
	Args:  cobra.NoArgs,
	RunE:  runSignup,
}

func runLogin(cmd *cobra.Command, args []string) error {
	p := newPrompter(cmd)
	email := loginEmail
	if email == "" {
		var err error
		if email, err = p.Line("Email: "); err != nil {
			return err
		}
	}
	password, err := p.Password("Password: ")
	if err != nil {
		return err
	}

	sess, err := auth.SignIn(commandContext(cmd), newGateway(), store, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", describe(sess.Profile(), email))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := auth.SignOut(store); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	sess, ok := store.Get()
	if !ok {
		fmt.Fprintln(out, "guest")
		return nil
	}
	fmt.Fprintln(out, describe(sess.Profile(), ""))
	if exp, ok := sess.Expiry(); ok {
		fmt.Fprintf(out, "Session expires %s\n", exp.Local().Format(time.RFC1123))
	}
	return nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	p := newPrompter(cmd)
	name, err := p.Line("Name: ")
	if err != nil {
		return err
	}
	email, err := p.Line("Email: ")
	if err != nil {
		return err
	}
	password, err := p.Password("Password: ")
	if err != nil {
		return err
	}
	confirm, err := p.Password("Confirm password: ")
	if err != nil {
		return err
	}
	if name == "" || email == "" || password == "" {
		return &auth.ValidationError{Message: auth.MsgMissingFields}
	}
	if password != confirm {
		return &auth.ValidationError{Message: auth.MsgPasswordMismatch}
	}

	msg, err := newGateway().Signup(commandContext(cmd), name, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	fmt.Fprintln(cmd.OutOrStdout(), "Run 'aura login' to sign in.")
	return nil
}

// describe renders a profile as "Name <email>", falling back to whatever is known.
func describe(p session.Profile, email string) string {
	if p.Email != "" {
		email = p.Email
	}
	switch {
	case p.Name != "" && email != "":
		return fmt.Sprintf("%s <%s>", p.Name, email)
	case p.Name != "":
		return p.Name
	case email != "":
		return email
	case p.ID != nil:
		return fmt.Sprintf("user %v", p.ID)
	default:
		return "signed in"
	}
}
