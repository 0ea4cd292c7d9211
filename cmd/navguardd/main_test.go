package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/navguard/internal/guard/common/clock"
	"github.com/haukened/navguard/internal/guard/config"
	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/gateways/classifier"
)

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

// TestApplication_Integration tests the full application lifecycle
func TestApplication_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	port := freePort(t)
	t.Setenv("NAV_CONFIG_FILE", "")
	t.Setenv("NAV_ENV", "dev")
	t.Setenv("NAV_LOG_LEVEL", "debug")
	t.Setenv("NAV_STORE", "bolt")
	t.Setenv("NAV_DB_PATH", filepath.Join(t.TempDir(), "lists.db"))
	t.Setenv("NAV_LISTEN", fmt.Sprintf("127.0.0.1:%d", port))
	t.Setenv("NAV_PUBLIC_URL", fmt.Sprintf("http://127.0.0.1:%d", port))
	t.Setenv("NAV_BROWSER_DISABLED", "true")
	t.Setenv("NAV_CLASSIFIER_DISABLED", "true")
	t.Setenv("NAV_EXTRA_BLOCK", "coolmathgames.com")

	cfg, err := config.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApplication(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, app.guard)
	assert.Nil(t, app.browser)

	appErr := make(chan error, 1)
	go func() { appErr <- app.Run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	// the extra entry was merged into the persisted blocklist
	resp, err := http.Get(base + "/api/lists/blocklist")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "coolmathgames.com")
	assert.Contains(t, string(body), "roblox.com")

	resp, err = http.Post(base+"/api/decide", "application/json", strings.NewReader(`{"url":"https://www.coolmathgames.com/"}`))
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"verdict":"block"`)
	assert.Contains(t, string(body), `"stage":"blocklist"`)

	cancel()
	select {
	case err := <-appErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
}

func TestBuildApplication_WithBrowser(t *testing.T) {
	t.Setenv("NAV_CONFIG_FILE", "")
	t.Setenv("NAV_STORE", "memory")
	t.Setenv("NAV_LISTEN", fmt.Sprintf("127.0.0.1:%d", freePort(t)))
	t.Setenv("NAV_CLASSIFIER_TOKEN", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, app.guard)
	assert.NotNil(t, app.browser)
	require.NoError(t, app.store.Close())
}

func TestBuildApplication_BadDBPath(t *testing.T) {
	cfg := config.DEFAULT_APP_CONFIG
	cfg.DBPath = filepath.Join(t.TempDir(), "missing", "dir", "lists.db")

	_, err := buildApplication(context.Background(), &cfg)
	assert.Error(t, err)
}

func TestBuildPolicy(t *testing.T) {
	cfg := config.DEFAULT_APP_CONFIG
	cfg.ExtraSafe = []string{" myschool.edu ", ""}
	cfg.ExtraBlock = []string{"coolmathgames.com"}

	p := buildPolicy(&cfg)
	base := domain.DefaultPolicy()
	assert.Len(t, p.DefaultSafe, len(base.DefaultSafe)+1)
	assert.Contains(t, p.DefaultSafe, "myschool.edu")
	assert.Contains(t, p.MustBlock, "coolmathgames.com")
	// the built-in policy is not modified
	assert.NotContains(t, domain.DefaultPolicy().MustBlock, "coolmathgames.com")
}

func TestBuildClassifier(t *testing.T) {
	cfg := config.DEFAULT_APP_CONFIG
	policy := domain.DefaultPolicy()

	c, err := buildClassifier(&cfg, policy, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, classifier.Disabled{}, c, "no token disables the classifier")

	cfg.ClassifierToken = "hf_test"
	c, err = buildClassifier(&cfg, policy, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &classifier.Client{}, c)

	cfg.ClassifierDisabled = true
	c, err = buildClassifier(&cfg, policy, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, classifier.Disabled{}, c)
}

func TestBuildStore(t *testing.T) {
	cfg := config.DEFAULT_APP_CONFIG
	cfg.Store = "memory"
	s, err := buildStore(&cfg, clock.RealClock{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg.Store = "bolt"
	cfg.DBPath = filepath.Join(t.TempDir(), "lists.db")
	s, err = buildStore(&cfg, clock.RealClock{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
