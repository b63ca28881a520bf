package console_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/studio-console/auth"
	"github.com/diewo77/studio-console/internal/console"
	"github.com/diewo77/studio-console/internal/server/servertest"
)

type harness struct {
	t     *testing.T
	env   *servertest.Env
	creds string
	stdin string
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:     t,
		env:   servertest.Start(t),
		creds: filepath.Join(t.TempDir(), "credentials.yaml"),
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := console.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(h.stdin))
	cmd.SetArgs(append(args, "--server", h.env.URL(), "--credentials", h.creds))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "studio-console %s", strings.Join(args, " "))
	return out
}

func (h *harness) loginAdmin() string {
	return h.mustRun("login", "--email", servertest.AdminEmail, "--password", servertest.AdminPassword)
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("whoami")
	assert.Contains(t, out, "Not signed in")

	out = h.loginAdmin()
	assert.Contains(t, out, "Signed in as")
	assert.Contains(t, out, "Opened /dashboard")

	out = h.mustRun("whoami")
	assert.Contains(t, out, "Role:  admin")
	assert.Contains(t, out, servertest.AdminEmail)

	out = h.mustRun("menu")
	assert.Contains(t, out, "/clients")
	assert.Contains(t, out, "/team")

	out = h.mustRun("logout")
	assert.Contains(t, out, "Signed out")

	out = h.mustRun("whoami")
	assert.Contains(t, out, "Not signed in")
}

func TestOpenRemembersOriginUntilLogin(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("open", "/clients/42")
	assert.Contains(t, out, "Redirected to /login")

	out = h.loginAdmin()
	assert.Contains(t, out, "Opened /clients/42")

	out = h.mustRun("logout")
	assert.Contains(t, out, "Signed out")
	out = h.loginAdmin()
	assert.Contains(t, out, "Opened /dashboard", "the origin is used once")
}

func TestClientRoleIsRedirected(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("signup", "--email", "client@studio.test", "--password", "client-password", "--name", "Client")
	assert.Contains(t, out, "Account created")

	h.mustRun("login", "--email", "client@studio.test", "--password", "client-password")

	out = h.mustRun("open", "/clients")
	assert.Contains(t, out, "Redirected to /dashboard")

	out = h.mustRun("open", "/projects")
	assert.Contains(t, out, "Opened /projects")

	out = h.mustRun("menu")
	assert.Contains(t, out, "/projects")
	assert.NotContains(t, out, "/clients")
	assert.NotContains(t, out, "/tasks")
}

func TestLoginErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("login", "--email", servertest.AdminEmail, "--password", "wrong-password")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, "Invalid email or password", err.Error())

	_, err = h.run("login", "--email", servertest.AdminEmail, "--password", "wrong-password", "--lang", "fr")
	require.Error(t, err)
	assert.Equal(t, "E-mail ou mot de passe incorrect", err.Error())

	_, err = h.run("login", "--password", "x")
	assert.EqualError(t, err, "--email is required")
}

func TestLoginWithoutProfileFailsClosed(t *testing.T) {
	h := newHarness(t)
	h.mustRun("signup", "--email", "orphan@studio.test", "--password", "orphan-password")
	h.env.DeleteProfile(t, h.env.UserID(t, "orphan@studio.test"))

	_, err := h.run("login", "--email", "orphan@studio.test", "--password", "orphan-password")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrProfileMissing)
	assert.Equal(t, "Account not fully set up", err.Error())

	out := h.mustRun("whoami")
	assert.Contains(t, out, "Not signed in")
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	h := newHarness(t)
	h.stdin = servertest.AdminPassword + "\n"

	out := h.mustRun("login", "--email", servertest.AdminEmail)
	assert.Contains(t, out, "Signed in as")
}

func TestSignupErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("signup", "--email", "x@studio.test", "--password", "long-enough", "--role", "owner")
	assert.EqualError(t, err, `unknown role "owner"`)

	_, err = h.run("signup", "--email", servertest.AdminEmail, "--password", "long-enough")
	assert.ErrorIs(t, err, auth.ErrEmailAlreadyInUse)
}

func TestServerFromEnvironment(t *testing.T) {
	h := newHarness(t)
	t.Setenv("STUDIO_SERVER_URL", h.env.URL())
	t.Setenv("STUDIO_CREDENTIALS", h.creds)

	cmd := console.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"login", "--email", servertest.AdminEmail, "--password", servertest.AdminPassword})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Signed in as")
}

// syncBuffer lets the test read output while a command is still writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchEndsWhenSessionRevoked(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	cmd := console.NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"watch", "--interval", "20ms", "--server", h.env.URL(), "--credentials", h.creds})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Watching session for "+servertest.AdminEmail)
	}, 5*time.Second, 10*time.Millisecond)

	h.env.RevokeSessions(t)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after the session was revoked")
	}
	assert.Contains(t, out.String(), "Session ended")

	got := h.mustRun("whoami")
	assert.Contains(t, got, "Not signed in")
}

func TestWatchNotSignedIn(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("watch", "--interval", "20ms")
	assert.Contains(t, out, "Not signed in")
}
