package commands

import (
	"fmt"

	"cchat/internal/api"
	"cchat/internal/notice"
	"cchat/internal/validation"

	"github.com/spf13/cobra"
)

func init() {
	passwordCmd.PersistentFlags().String("email", "", "account email address")
	passwordVerifyCmd.Flags().String("otp", "", "code received by email")
	passwordResetCmd.Flags().String("otp", "", "code received by email")
	passwordResetCmd.Flags().String("password", "", "new password")
	passwordResetCmd.Flags().String("confirm", "", "new password confirmation (defaults to --password)")

	passwordCmd.AddCommand(passwordForgotCmd, passwordVerifyCmd, passwordResetCmd)
	rootCmd.AddCommand(passwordCmd)
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Recover a forgotten password",
}

var passwordForgotCmd = &cobra.Command{
	Use:   "forgot",
	Short: "Request a verification code",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := validation.Email(email); err != nil {
			return env.explain(err, notice.ValidationFailed)
		}
		if err := env.api.ForgotPassword(cmd.Context(), email); err != nil {
			return env.explain(err, notice.ServerError)
		}
		fmt.Fprintln(cmd.OutOrStdout(), env.catalog.Text(notice.OTPSent, map[string]any{"Email": email}))
		return nil
	},
}

var passwordVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a verification code",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		otp, _ := cmd.Flags().GetString("otp")

		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := validation.OTP(email, otp); err != nil {
			return env.explain(err, notice.ValidationFailed)
		}
		if err := env.api.VerifyOTP(cmd.Context(), email, otp); err != nil {
			return env.explain(err, notice.ServerError)
		}
		fmt.Fprintln(cmd.OutOrStdout(), env.catalog.Text(notice.OTPVerified, nil))
		return nil
	},
}

var passwordResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Set a new password with a verification code",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		otp, _ := cmd.Flags().GetString("otp")
		password, _ := cmd.Flags().GetString("password")
		confirm, _ := cmd.Flags().GetString("confirm")
		if confirm == "" {
			confirm = password
		}

		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := validation.OTP(email, otp); err != nil {
			return env.explain(err, notice.ValidationFailed)
		}
		if err := validation.ResetPassword(password, confirm); err != nil {
			return env.explain(err, notice.ValidationFailed)
		}
		err = env.api.ResetPassword(cmd.Context(), api.ResetPasswordRequest{Email: email, OTP: otp, NewPassword: password})
		if err != nil {
			return env.explain(err, notice.ServerError)
		}
		fmt.Fprintln(cmd.OutOrStdout(), env.catalog.Text(notice.PasswordReset, nil))
		return nil
	},
}
