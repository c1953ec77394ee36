package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aura/internal/api"
	"aura/internal/logging"
	"aura/internal/reset"
)

var resetEmail string

// resetCmd walks through the OTP password reset
var resetCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Reset a forgotten password with an emailed code",
	Long: `Requests a one-time code for your email, verifies it and sets a new password.

Type 'resend' at the code prompt to have another code sent.`,
	Args: cobra.NoArgs,
	RunE: runResetPassword,
}

func runResetPassword(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	p := newPrompter(cmd)

	flow := reset.NewFlow(newGateway(), resetEmail,
		reset.WithResendCooldown(cfg.GetResendCooldown()),
		reset.WithLogger(categoryLogger(logging.CategoryReset)),
	)

	askEmail := resetEmail == ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch st := flow.State().(type) {
		case reset.EmailEntry:
			if askEmail {
				email, perr := p.Line("Email: ")
				if perr != nil {
					return perr
				}
				if err := flow.SetEmail(email); err != nil {
					return err
				}
			}
			askEmail = true
			err = flow.RequestCode(ctx)

		case reset.OTPPending:
			otp, perr := p.Line(fmt.Sprintf("Code sent to %s (or 'resend'): ", st.Email()))
			if perr != nil {
				return perr
			}
			if strings.EqualFold(otp, "resend") {
				err = flow.Resend(ctx)
			} else {
				err = flow.Verify(ctx, otp)
			}

		case reset.OTPVerified:
			password, perr := p.Password("New password: ")
			if perr != nil {
				return perr
			}
			confirm, perr := p.Password("Confirm password: ")
			if perr != nil {
				return perr
			}
			err = flow.Reset(ctx, password, confirm)

		case reset.Completed:
			fmt.Fprintln(out, "Password reset successful. Run 'aura login' to sign in.")
			return nil
		}

		if err != nil && !recoverable(err) {
			return err
		}
		if _, done := flow.State().(reset.Completed); done {
			continue
		}
		v := flow.View()
		if v.Error != "" {
			fmt.Fprintln(out, v.Error)
		} else if v.Message != "" {
			fmt.Fprintln(out, v.Message)
		}
	}
}

// recoverable reports whether the user can fix err by answering again.
func recoverable(err error) bool {
	var verr *reset.ValidationError
	var apiErr *api.Error
	return errors.As(err, &verr) || errors.As(err, &apiErr)
}
