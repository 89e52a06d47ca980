package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

var runSeq int

type cliEnv struct {
	dbPath  string
	envFile string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("INFERENCE_PROVIDER", "mock")
	t.Setenv("MEMORY_RANKING", "")
	return cliEnv{
		dbPath:  filepath.Join(dir, "amical.db"),
		envFile: filepath.Join(dir, "missing.env"),
	}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	runSeq++
	t.Setenv("APP_METRICS_NAMESPACE", fmt.Sprintf("test_cli_%d", runSeq))
	t.Setenv("DATABASE_URL", e.dbPath)

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--env-file", e.envFile}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPersonasCreateListAndSend(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run(t, "personas", "create",
		"--name", "Alex", "--age", "17", "--occupation", "lycéen",
		"--personality", "enthousiaste", "--tone", "décontracté", "--background", "Lyon")
	if err != nil {
		t.Fatalf("personas create error = %v", err)
	}
	var created struct {
		ID               string `json:"id"`
		DailyMessageTime string `json:"daily_message_time"`
	}
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode create output: %v (%q)", err, out)
	}
	if created.ID == "" || created.DailyMessageTime != "18:00" {
		t.Fatalf("created = %+v, want id and default daily time", created)
	}

	out, _, err = env.run(t, "personas", "list")
	if err != nil {
		t.Fatalf("personas list error = %v", err)
	}
	if !strings.Contains(out, created.ID) || !strings.Contains(out, "Alex, 17 ans") {
		t.Fatalf("list output = %q", out)
	}

	out, _, err = env.run(t, "send", created.ID, "Bonjour", "toi")
	if err != nil {
		t.Fatalf("send error = %v", err)
	}
	if strings.TrimSpace(out) != "Je t'ai entendu : Bonjour toi" {
		t.Fatalf("send output = %q", out)
	}

	out, _, err = env.run(t, "turns", created.ID)
	if err != nil {
		t.Fatalf("turns error = %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 2 || !strings.Contains(lines[0], "user: Bonjour toi") {
		t.Fatalf("turns output = %q", out)
	}
}

func TestPersonasCreateReportsFields(t *testing.T) {
	env := newCLIEnv(t)
	_, stderr, err := env.run(t, "personas", "create", "--name", "Alex", "--age", "200")
	if err == nil {
		t.Fatalf("create with missing fields succeeded")
	}
	for _, field := range []string{"age:", "occupation:", "background:"} {
		if !strings.Contains(stderr, field) {
			t.Fatalf("stderr missing %q: %q", field, stderr)
		}
	}
}

func TestSendUnknownPersona(t *testing.T) {
	env := newCLIEnv(t)
	if _, _, err := env.run(t, "send", "missing", "Salut"); err == nil {
		t.Fatalf("send to unknown persona succeeded")
	}
}
