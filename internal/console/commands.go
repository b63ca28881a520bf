package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/diewo77/studio-console/auth"
	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/i18n"
	"github.com/diewo77/studio-console/internal/policy"
)

func (a *app) loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. When a previous "open" was redirected
to the login page, the console continues to that page afterwards.

The password is read from standard input when --password is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("--password is required")
				}
				password = strings.TrimSpace(line)
			}

			ctx := cmd.Context()
			if _, err := a.session(ctx); err != nil {
				return err
			}
			if err := a.manager.Login(ctx, email, password); err != nil {
				return a.fail(err)
			}
			snap, err := a.settle(ctx)
			if err != nil {
				return err
			}
			if !snap.Authenticated() {
				if snap.Err == nil {
					return errors.New("sign-in did not complete")
				}
				return a.fail(snap.Err)
			}
			a.printf("Signed in as %s (%s)\n", snap.User.DisplayName, snap.User.Role)

			creds, err := a.client.Credentials()
			if err != nil {
				return err
			}
			target := gate.DefaultFallbackPath
			if creds.ReturnTo != "" {
				target = creds.ReturnTo
				if err := a.client.SetReturnTo(""); err != nil {
					return err
				}
			}
			return a.open(snap, target)
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	return cmd
}

func (a *app) signupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			roleName, _ := cmd.Flags().GetString("role")
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			role := gate.ParseRole(roleName)
			if roleName != "" && !role.Valid() {
				return fmt.Errorf("unknown role %q", roleName)
			}
			err := a.manager.Signup(cmd.Context(), auth.SignupRequest{
				Email:       email,
				Password:    password,
				DisplayName: name,
				Role:        role,
			})
			if err != nil {
				return a.fail(err)
			}
			a.printf("Account created for %s. Sign in with: studio-console login --email %s\n", email, email)
			return nil
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("role", "", "client or collaborator (default client)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and revoke the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			snap, err := a.session(ctx)
			if err != nil {
				return err
			}
			if !snap.Authenticated() {
				a.printf("Not signed in\n")
				return nil
			}
			if err := a.manager.Logout(ctx); err != nil {
				return a.fail(err)
			}
			if _, err := a.settle(ctx); err != nil {
				return err
			}
			a.printf("Signed out\n")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if !snap.Authenticated() {
				a.printf("Not signed in\n")
				if snap.Err != nil {
					a.printf("Reason: %s\n", i18n.T(a.lang, auth.Code(snap.Err)))
				}
				return nil
			}
			u := snap.User
			a.printf("ID:    %s\n", u.ID)
			a.printf("Name:  %s\n", u.DisplayName)
			a.printf("Email: %s\n", u.Email)
			a.printf("Role:  %s\n", u.Role)
			return nil
		},
	}
}

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Check whether a page may be opened",
		Long: `Run the route guard for a page. Denied pages are replaced by their
redirect target; a redirect to the login page is remembered so that the
next login continues there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			return a.open(snap, args[0])
		},
	}
}

func (a *app) open(v gate.Viewer, location string) error {
	nav := &navigator{client: a.client, location: location}
	d, err := a.routes.Guard(v, location, nav)
	if err != nil {
		return err
	}
	if nav.err != nil {
		return nav.err
	}
	switch d.Outcome {
	case gate.Render:
		a.printf("Opened %s\n", location)
	case gate.Redirect:
		a.printf("Redirected to %s\n", nav.location)
	default:
		a.printf("Still loading\n")
	}
	return nil
}

func (a *app) menuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "List the pages the signed-in role may open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if !snap.Authenticated() {
				a.printf("Not signed in\n")
				return nil
			}
			for _, item := range a.routes.Visible(snap, policy.NavItems()) {
				a.printf("  %-14s %s\n", item.Label, item.Path)
			}
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session fresh until it ends or the command is interrupted",
		Long: `Keep the stored session alive: tokens close to expiry are refreshed and
the backend is asked at every interval whether the session still stands.
The command returns when the session is revoked or has expired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			ctx := cmd.Context()
			snap, err := a.session(ctx)
			if err != nil {
				return err
			}
			if !snap.Authenticated() {
				a.printf("Not signed in\n")
				return nil
			}

			updates, stop := a.manager.Subscribe()
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				a.client.Watch(ctx, interval)
			}()
			defer func() {
				cancel()
				<-done
			}()

			a.printf("Watching session for %s\n", snap.User.Email)
			for {
				select {
				case <-ctx.Done():
					return nil
				case s, ok := <-updates:
					if !ok {
						return nil
					}
					if !auth.Settled(s) || s.Authenticated() {
						continue
					}
					a.printf("Session ended\n")
					if s.Err != nil {
						a.printf("Reason: %s\n", i18n.T(a.lang, auth.Code(s.Err)))
					}
					return nil
				}
			}
		},
	}
	cmd.Flags().Duration("interval", 30*time.Second, "how often the session is checked")
	return cmd
}
