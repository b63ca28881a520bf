// Package console implements the studio-console command line: sign in to
// the identity backend, inspect the session and check which pages the
// signed-in role may open.
package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/diewo77/studio-console/auth"
	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/internal/client"
	"github.com/diewo77/studio-console/internal/logging"
	"github.com/diewo77/studio-console/internal/policy"
)

// settleTimeout bounds how long a command waits for the session check.
const settleTimeout = 15 * time.Second

var envBindings = map[string]string{
	"server":      "STUDIO_SERVER_URL",
	"credentials": "STUDIO_CREDENTIALS",
	"routes":      "STUDIO_ROUTES",
	"lang":        "STUDIO_LANG",
	"log-level":   "STUDIO_LOG_LEVEL",
}

type app struct {
	v       *viper.Viper
	out     io.Writer
	log     *slog.Logger
	lang    string
	client  *client.Client
	routes  *gate.Gate
	manager *auth.Manager
	started bool
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:   "studio-console",
		Short: "Studio session console",
		Long: `studio-console signs in to the studio identity backend and answers
what the signed-in account may open.

Examples:
  studio-console login --email admin@studio.test
  studio-console open /clients
  studio-console menu
  studio-console watch --interval 1m`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.String("server", "http://localhost:8080", "identity backend URL")
	flags.String("credentials", defaultCredentialsPath(), "file holding the session")
	flags.String("routes", "", "YAML file overriding route policies")
	flags.String("lang", "en", "message language (en, fr)")
	flags.String("log-level", "warn", "log level")
	for key, env := range envBindings {
		_ = a.v.BindPFlag(key, flags.Lookup(key))
		_ = a.v.BindEnv(key, env)
	}

	root.AddCommand(
		a.loginCmd(),
		a.signupCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.openCmd(),
		a.menuCmd(),
		a.watchCmd(),
	)
	// Post-run hooks are skipped when RunE fails; close the manager on every path.
	for _, c := range root.Commands() {
		if run := c.RunE; run != nil {
			c.RunE = func(cmd *cobra.Command, args []string) error {
				defer a.teardown()
				return run(cmd, args)
			}
		}
	}
	return root
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "studio", "credentials.yaml")
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.out = cmd.OutOrStdout()
	a.lang = a.v.GetString("lang")
	a.log = logging.New(logging.Config{
		Level:   logging.ParseLevel(a.v.GetString("log-level")),
		Format:  logging.FormatText,
		Output:  cmd.ErrOrStderr(),
		Service: "studio-console",
	})

	routes, err := policy.LoadRoutes(a.v.GetString("routes"))
	if err != nil {
		return fmt.Errorf("load routes: %w", err)
	}
	a.routes = routes

	store := client.NewFileStore(a.v.GetString("credentials"))
	a.client = client.New(a.v.GetString("server"), store, client.WithLogger(a.log))
	a.manager = auth.NewManager(a.client, a.client, auth.WithLogger(a.log))
	return nil
}

func (a *app) teardown() {
	if a.manager != nil {
		a.manager.Close()
	}
}

// session starts the manager on first use and waits for the session check.
func (a *app) session(ctx context.Context) (auth.Snapshot, error) {
	if !a.started {
		if err := a.manager.Start(ctx); err != nil {
			return auth.Snapshot{}, err
		}
		a.started = true
	}
	return a.settle(ctx)
}

func (a *app) settle(ctx context.Context) (auth.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	return a.manager.WaitFor(ctx, auth.Settled)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
