package commands

import (
	"fmt"

	"cchat/internal/api"
	"cchat/internal/notice"
	"cchat/internal/upload"
	"cchat/internal/validation"

	"github.com/spf13/cobra"
)

func init() {
	registerCmd.Flags().String("name", "", "display name")
	registerCmd.Flags().String("email", "", "email address")
	registerCmd.Flags().String("password", "", "password")
	registerCmd.Flags().String("confirm", "", "password confirmation (defaults to --password)")

	loginCmd.Flags().String("email", "", "email address")
	loginCmd.Flags().String("password", "", "password")

	profileCmd.Flags().String("name", "", "new display name")
	profileCmd.Flags().String("avatar", "", "image file to upload as avatar")

	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd, profileCmd)
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
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

		if err := validation.Register(name, email, password, confirm); err != nil {
			return env.explain(err, notice.ValidationFailed)
		}
		res, err := env.api.Register(cmd.Context(), api.RegisterRequest{Name: name, Email: email, Password: password})
		if err != nil {
			return env.explain(err, notice.ServerError)
		}
		if err := env.sess.Authenticate(res.Token, res.User); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), env.catalog.Text(notice.RegisterSucceeded, map[string]any{"Email": res.User.Email}))
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := validation.Login(email, password); err != nil {
			return env.explain(err, notice.ValidationFailed)
		}
		res, err := env.api.Login(cmd.Context(), api.LoginRequest{Email: email, Password: password})
		if err != nil {
			return env.explain(err, notice.ServerError)
		}
		if err := env.sess.Authenticate(res.Token, res.User); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), env.catalog.Text(notice.LoginSucceeded, map[string]any{"Name": res.User.Name}))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.sess.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), env.catalog.Text(notice.LoggedOut, nil))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.requireSession(); err != nil {
			return err
		}

		me, err := env.api.Me(cmd.Context())
		if err != nil {
			if expired(err) {
				env.sess.Logout()
			}
			return env.explain(err, notice.ServerError)
		}
		if err := env.sess.SetUser(me); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n%s\n", me.Name, me.Email, me.ID)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update display name and avatar",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		avatarPath, _ := cmd.Flags().GetString("avatar")

		env, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.requireSession(); err != nil {
			return err
		}

		me, _ := env.sess.User()
		if name == "" {
			name = me.Name
		}
		if err := validation.Profile(name); err != nil {
			return env.explain(err, notice.ValidationFailed)
		}

		req := api.UpdateProfileRequest{UserID: env.sess.UserID(), Name: name, Avatar: me.Avatar}
		if avatarPath != "" {
			if env.uploader == nil {
				return env.explain(upload.ErrDisabled, notice.UploadFailed)
			}
			url, err := env.uploader.Upload(cmd.Context(), avatarPath)
			if err != nil {
				return env.explain(err, notice.UploadFailed)
			}
			req.Avatar = &url
		}

		updated, err := env.api.UpdateProfile(cmd.Context(), req)
		if err != nil {
			if expired(err) {
				env.sess.Logout()
			}
			return env.explain(err, notice.ProfileUpdateFailed)
		}
		if err := env.sess.SetUser(updated); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), env.catalog.Text(notice.ProfileUpdated, nil))
		return nil
	},
}
