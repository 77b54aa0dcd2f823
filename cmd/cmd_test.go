package cmd

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"journal-gamification/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "journal-gamification version")
}

func TestCatalogCommandFlagsUnknownKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
badges:
  - name: Night Owl
    kind: late_trades
    threshold: 3
`), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"catalog", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "night-owl")
	assert.Contains(t, out.String(), "unknown, skipped")
}

func TestNewAppRequiresGatewayToken(t *testing.T) {
	app := newApp(services.NewEngine(nil, zap.NewNop()), "secret", []string{"*"}, zap.NewNop())

	req := httptest.NewRequest("GET", "/user/progress", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
