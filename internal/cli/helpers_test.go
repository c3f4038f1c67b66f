package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/magicball/internal/decision"
	"github.com/roach88/magicball/internal/store"
)

// testEnv is an isolated config and database for one test.
type testEnv struct {
	dir        string
	configPath string
	dbPath     string
}

// newTestEnv writes a config pointing at a fresh database, the UTC timezone
// and apiURL. extra is appended to the YAML verbatim.
func newTestEnv(t *testing.T, apiURL string, extra string) *testEnv {
	t.Helper()
	for _, key := range []string{"MAGICBALL_DB", "MAGICBALL_LOG_LEVEL", "MAGICBALL_API_URL",
		"MAGICBALL_API_TIMEOUT", "MAGICBALL_TIMEZONE", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "magicball.yaml"),
		dbPath:     filepath.Join(dir, "magicball.db"),
	}
	body := fmt.Sprintf(`database: %q
timezone: UTC
api:
  base_url: %q
  timeout: 2s
%s`, env.dbPath, apiURL, extra)
	require.NoError(t, os.WriteFile(env.configPath, []byte(body), 0o644))
	return env
}

// newEmptyEnv is a test environment with no presets and an unreachable API.
func newEmptyEnv(t *testing.T) *testEnv {
	return newTestEnv(t, "http://127.0.0.1:1", "presets: []\n")
}

// run executes the root command with the env's config prepended to args.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand("test")

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))

	err := cmd.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}

// save writes ds directly into the env's database.
func (e *testEnv) save(t *testing.T, ds ...decision.Decision) {
	t.Helper()
	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Save(context.Background(), ds))
}

func at(id, answer string, ts string) decision.Decision {
	created, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return decision.Decision{ID: id, Answer: answer, CreatedAt: created}
}

// historyFixture is three decisions over two months.
func historyFixture() []decision.Decision {
	return []decision.Decision{
		at("a", "Yes", "2024-03-20T12:00:00Z"),
		at("b", "maybe", "2024-03-01T09:00:00Z"),
		at("c", "No", "2024-01-02T08:30:00Z"),
	}
}

// answerServer serves the 8-ball API with a fixed answer, or status when
// it is not 200.
func answerServer(t *testing.T, status int, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"magic":{"question":"q","answer":%q,"type":"Affirmative"}}`, answer)
	}))
	t.Cleanup(srv.Close)
	return srv
}
