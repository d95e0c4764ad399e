package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tvinspection/tvinspect/pkg/client"
)

// readSecret returns the flag value, or reads one line from in.
func readSecret(cmd *cobra.Command, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s", strings.TrimSuffix(strings.ToLower(prompt), ": "))
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the inspection backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, sess, err := a.client()
			if err != nil {
				return err
			}
			password, err := readSecret(cmd, password, "Password: ")
			if err != nil {
				return err
			}
			u, err := sess.Login(cmd.Context(), api, username, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", u.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func (a *app) registerCmd() *cobra.Command {
	var req client.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, sess, err := a.client()
			if err != nil {
				return err
			}
			if req.Password, err = readSecret(cmd, req.Password, "Password: "); err != nil {
				return err
			}
			if req.Password2 == "" {
				req.Password2 = req.Password
			}
			u, err := sess.Register(cmd.Context(), api, req)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s\n", u.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Password (read from stdin when omitted)")
	cmd.Flags().StringVar(&req.Password2, "password-confirm", "", "Password confirmation (defaults to --password)")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			if err := sess.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show or update the profile of the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.authed()
			if err != nil {
				return err
			}
			var u client.User
			if len(sets) > 0 {
				fields := make(map[string]any, len(sets))
				for _, s := range sets {
					k, v, ok := strings.Cut(s, "=")
					if !ok || k == "" {
						return fmt.Errorf("invalid --set %q, want field=value", s)
					}
					fields[k] = v
				}
				u, err = a.sess.UpdateProfile(cmd.Context(), api, fields)
			} else {
				u, err = a.sess.LoadProfile(cmd.Context(), api)
			}
			if err != nil {
				return fmt.Errorf("profile: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Username: %s\n", u.Username)
			fmt.Fprintf(out, "Name:     %s\n", u.DisplayName())
			if u.Email != "" {
				fmt.Fprintf(out, "Email:    %s\n", u.Email)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Update a profile field, e.g. --set first_name=Jane")
	return cmd
}
