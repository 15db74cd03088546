package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olliecrow/chapter_generator/internal/config"
	"github.com/olliecrow/chapter_generator/internal/logger"
)

func TestRunHelpMentionsTerminalUserInterface(t *testing.T) {
	code, stdout, _ := runWithCapturedOutput(t, []string{"--help"})
	if code != 0 {
		t.Fatalf("expected code 0, got %d", code)
	}
	if !strings.Contains(stdout, "terminal user interface (TUI)") {
		t.Fatalf("expected help to expand terminal user interface term, got:\n%s", stdout)
	}
	for _, sub := range []string{"generate", "status", "history", "license", "upgrade", "doctor", "completion"} {
		if !strings.Contains(stdout, sub) {
			t.Fatalf("expected help to list %q, got:\n%s", sub, stdout)
		}
	}
}

func TestRunCompletionDefaultIsBash(t *testing.T) {
	code, stdout, _ := runWithCapturedOutput(t, []string{"completion"})
	if code != 0 {
		t.Fatalf("expected code 0, got %d", code)
	}
	if !strings.Contains(stdout, "bash completion V2 for chapter-generator") {
		t.Fatalf("expected bash completion output, got:\n%s", stdout)
	}
}

func TestRunCompletionZsh(t *testing.T) {
	code, stdout, _ := runWithCapturedOutput(t, []string{"completion", "zsh"})
	if code != 0 {
		t.Fatalf("expected code 0, got %d", code)
	}
	if !strings.Contains(stdout, "#compdef chapter-generator") {
		t.Fatalf("expected zsh completion output, got:\n%s", stdout)
	}
}

func TestRunCompletionRejectsUnknownShell(t *testing.T) {
	code, _, stderr := runWithCapturedOutput(t, []string{"completion", "tcsh"})
	if code != 2 {
		t.Fatalf("expected code 2 for unsupported shell, got %d", code)
	}
	if !strings.Contains(stderr, "unsupported shell") {
		t.Fatalf("expected unsupported shell error, got:\n%s", stderr)
	}
}

func TestRunUnknownCommandIsUsageError(t *testing.T) {
	code, _, stderr := runWithCapturedOutput(t, []string{"frobnicate"})
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestRunUnknownFlagIsUsageError(t *testing.T) {
	code, _, _ := runWithCapturedOutput(t, []string{"status", "--bogus"})
	assert.Equal(t, 2, code)
}

type testEnv struct {
	dir  string
	hits *atomic.Int32
}

// setupEnv points the CLI at a temp home, a temp config and a fake webhook.
func setupEnv(t *testing.T, handler http.HandlerFunc, extraYAML string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	env := &testEnv{dir: dir, hits: &atomic.Int32{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := "webhook:\n  url: " + srv.URL + "/webhook/timestamps\n" +
		"storage:\n  driver: file\n  path: " + filepath.Join(dir, "state.json") + "\n" +
		"logging:\n  level: debug\n  file: " + filepath.Join(dir, "cli.log") + "\n" +
		extraYAML
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	t.Setenv(config.ConfigFileEnvVar, path)
	t.Setenv(config.WebhookURLEnvVar, "")
	return env
}

func chaptersHandler(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, text)
	}
}

func TestGenerateStatusAndHistoryFlow(t *testing.T) {
	env := setupEnv(t, chaptersHandler("00:00 Intro\n03:20 Demo\n"), "")

	code, stdout, stderr := runWithCapturedOutput(t, []string{"generate", "https://youtu.be/abc"})
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "00:00 Intro\n03:20 Demo\n", stdout)

	code, stdout, stderr = runWithCapturedOutput(t, []string{"status", "--json"})
	require.Equal(t, 0, code, stderr)
	var status struct {
		Licensed  bool `json:"licensed"`
		Limit     int  `json:"limit"`
		Remaining int  `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &status))
	assert.False(t, status.Licensed)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, 4, status.Remaining)

	code, stdout, _ = runWithCapturedOutput(t, []string{"history"})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "1. ")
	assert.Contains(t, stdout, "https://youtu.be/abc")

	code, stdout, _ = runWithCapturedOutput(t, []string{"history", "show", "1"})
	require.Equal(t, 0, code)
	assert.Equal(t, "00:00 Intro\n03:20 Demo\n", stdout)

	code, _, _ = runWithCapturedOutput(t, []string{"history", "show", "2"})
	assert.Equal(t, 1, code)

	assert.Equal(t, int32(1), env.hits.Load())
	_, err := os.Stat(filepath.Join(env.dir, "state.json"))
	assert.NoError(t, err)
}

func TestGenerateJSONOutput(t *testing.T) {
	setupEnv(t, chaptersHandler("00:00 Intro"), "")

	code, stdout, stderr := runWithCapturedOutput(t, []string{"generate", "--json", "https://youtu.be/abc"})
	require.Equal(t, 0, code, stderr)

	var out struct {
		Chapters string `json:"chapters"`
		Record   struct {
			URL string `json:"url"`
		} `json:"record"`
		Usage struct {
			Count int `json:"count"`
		} `json:"usage"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "00:00 Intro", out.Chapters)
	assert.Equal(t, "https://youtu.be/abc", out.Record.URL)
	assert.Equal(t, 1, out.Usage.Count)
}

func TestGenerateStopsAtFreeLimit(t *testing.T) {
	env := setupEnv(t, chaptersHandler("00:00 Intro"), "quota:\n  free_limit: 1\n")

	code, _, stderr := runWithCapturedOutput(t, []string{"generate", "https://youtu.be/one"})
	require.Equal(t, 0, code, stderr)

	code, _, stderr = runWithCapturedOutput(t, []string{"generate", "https://youtu.be/two"})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "You have reached your limit of 1 free generations per month.")
	assert.Equal(t, int32(1), env.hits.Load())
}

func TestGenerateBlankURLIsUsageError(t *testing.T) {
	env := setupEnv(t, chaptersHandler("x"), "")

	code, _, stderr := runWithCapturedOutput(t, []string{"generate", "   "})
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Please enter a valid YouTube URL.")
	assert.Equal(t, int32(0), env.hits.Load())
}

func TestGenerateRemoteFailure(t *testing.T) {
	setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"Could not fetch transcript"}`)
	}, "")

	code, _, stderr := runWithCapturedOutput(t, []string{"generate", "https://youtu.be/abc"})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Failed to generate: Could not fetch transcript")

	code, stdout, _ := runWithCapturedOutput(t, []string{"history", "--json"})
	require.Equal(t, 0, code)
	assert.JSONEq(t, `[]`, stdout)
}

func TestLicenseLifecycle(t *testing.T) {
	var body atomic.Value
	setupEnv(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body.Store(string(raw))
		_, _ = io.WriteString(w, "00:00 Intro")
	}, "")

	code, stdout, _ := runWithCapturedOutput(t, []string{"license", "show"})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "no license key set")

	code, _, stderr := runWithCapturedOutput(t, []string{"license", "set", "PRO-42"})
	require.Equal(t, 0, code, stderr)

	code, stdout, _ = runWithCapturedOutput(t, []string{"status"})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "plan: pro")

	code, _, _ = runWithCapturedOutput(t, []string{"generate", "https://youtu.be/abc"})
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"videoUrl":"https://youtu.be/abc","licenseKey":"PRO-42"}`, body.Load().(string))

	code, _, _ = runWithCapturedOutput(t, []string{"license", "clear"})
	require.Equal(t, 0, code)
	code, stdout, _ = runWithCapturedOutput(t, []string{"status"})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "plan: free")
	assert.Contains(t, stdout, "remaining: 5")
}

func TestUpgradeRequiresCheckoutURL(t *testing.T) {
	setupEnv(t, chaptersHandler("x"), "")
	code, _, stderr := runWithCapturedOutput(t, []string{"upgrade"})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "checkout_url")
}

func TestUpgradePrintsCheckoutURL(t *testing.T) {
	setupEnv(t, chaptersHandler("x"), "checkout_url: https://buy.example.com/pro\n")
	code, stdout, _ := runWithCapturedOutput(t, []string{"upgrade"})
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "https://buy.example.com/pro")
	assert.Contains(t, stdout, "license set <key>")
}

func TestHistoryShowRejectsBadIndex(t *testing.T) {
	setupEnv(t, chaptersHandler("x"), "")
	code, _, stderr := runWithCapturedOutput(t, []string{"history", "show", "zero"})
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "positive integer")
}

func TestStorageFlagOverridesConfig(t *testing.T) {
	env := setupEnv(t, chaptersHandler("00:00 Intro"), "")

	code, _, stderr := runWithCapturedOutput(t, []string{"--storage", "memory", "generate", "https://youtu.be/abc"})
	require.Equal(t, 0, code, stderr)
	_, err := os.Stat(filepath.Join(env.dir, "state.json"))
	assert.True(t, os.IsNotExist(err), "memory storage must not touch the state file")

	code, _, _ = runWithCapturedOutput(t, []string{"--storage", "carrier-pigeon", "status"})
	assert.Equal(t, 2, code)
}

func TestDoctorHealthyJSON(t *testing.T) {
	env := setupEnv(t, chaptersHandler("x"), "")

	code, stdout, stderr := runWithCapturedOutput(t, []string{"doctor", "--json", "--timeout", "5s"})
	require.Equal(t, 0, code, stderr)

	var report struct {
		Checks []struct {
			Name string `json:"name"`
			OK   bool   `json:"ok"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Len(t, report.Checks, 4)
	assert.Equal(t, int32(0), env.hits.Load(), "doctor must not post to the webhook")
}

func TestDoctorRejectsNonPositiveTimeout(t *testing.T) {
	code, _, stderr := runWithCapturedOutput(t, []string{"doctor", "--timeout", "0s"})
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--timeout must be > 0")
}

func TestOpenAppPutsLoggerOnCommandContext(t *testing.T) {
	setupEnv(t, chaptersHandler("x"), "")
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	a, err := openApp(cmd, &rootOptions{storage: "memory"})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.Same(t, a.logger, logger.FromContext(cmd.Context()))
}

func runWithCapturedOutput(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	origStdout := os.Stdout
	origStderr := os.Stderr
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stdout pipe failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("stderr pipe failed: %v", err)
	}
	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run(args)

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = origStdout
	os.Stderr = origStderr

	stdoutBytes, err := io.ReadAll(stdoutR)
	if err != nil {
		t.Fatalf("stdout read failed: %v", err)
	}
	stderrBytes, err := io.ReadAll(stderrR)
	if err != nil {
		t.Fatalf("stderr read failed: %v", err)
	}
	_ = stdoutR.Close()
	_ = stderrR.Close()
	return code, string(stdoutBytes), string(stderrBytes)
}
