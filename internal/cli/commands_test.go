package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hyperdb/internal/atom"
	"github.com/roach88/hyperdb/internal/hashing"
	"github.com/roach88/hyperdb/internal/store"
	"github.com/roach88/hyperdb/internal/testutil"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args...)
}

func runCLIContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// writeAnimalsKB writes the animals knowledge base as a CUE file.
func writeAnimalsKB(t *testing.T, dir string) string {
	t.Helper()

	concept := func(name string) string {
		return fmt.Sprintf("{type: %q, name: %q}", testutil.ConceptType, name)
	}

	var b strings.Builder
	b.WriteString("nodes: [\n")
	for _, name := range testutil.AnimalConcepts {
		fmt.Fprintf(&b, "\t%s,\n", concept(name))
	}
	b.WriteString("]\nlinks: [\n")
	for _, p := range testutil.AnimalSimilarities {
		fmt.Fprintf(&b, "\t{type: \"Similarity\", targets: [%s, %s]},\n", concept(p[0]), concept(p[1]))
	}
	for _, p := range testutil.AnimalInheritances {
		fmt.Fprintf(&b, "\t{type: \"Inheritance\", targets: [%s, %s]},\n", concept(p[0]), concept(p[1]))
	}
	b.WriteString("]\n")

	path := filepath.Join(dir, "animals.cue")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

// loadedSQLite returns the path of a sqlite database holding the animals
// knowledge base.
func loadedSQLite(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "animals.db")
	out, _, err := runCLI(t, "--db", dbPath, "load", writeAnimalsKB(t, dir))
	require.NoError(t, err)
	require.Equal(t, "Loaded 14 node(s) and 19 link(s) from 1 file(s)\n", out)
	return dbPath
}

func chimpHandle() string {
	return hashing.TerminalHash(testutil.ConceptType, "chimp")
}

func TestLoad_CountAfterReopen(t *testing.T) {
	dbPath := loadedSQLite(t)

	out, _, err := runCLI(t, "--db", dbPath, "count")
	require.NoError(t, err)
	assert.Equal(t, "nodes: 14\nlinks: 19\n", out)

	out, _, err = runCLI(t, "--db", dbPath, "--format", "json", "count")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":{"nodes":14,"links":19}}`, out)
}

func TestLoad_Badger(t *testing.T) {
	dir := t.TempDir()
	kb := writeAnimalsKB(t, dir)
	dbDir := filepath.Join(dir, "badger")

	_, _, err := runCLI(t, "--backend", "badger", "--db", dbDir, "load", kb)
	require.NoError(t, err)

	out, _, err := runCLI(t, "--backend", "badger", "--db", dbDir, "match", "Similarity", chimpHandle(), "*")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestLoad_Idempotent(t *testing.T) {
	dbPath := loadedSQLite(t)
	kb := writeAnimalsKB(t, t.TempDir())

	_, _, err := runCLI(t, "--db", dbPath, "load", kb)
	require.NoError(t, err)

	out, _, err := runCLI(t, "--db", dbPath, "count")
	require.NoError(t, err)
	assert.Equal(t, "nodes: 14\nlinks: 19\n", out)
}

func TestLoad_MissingPath(t *testing.T) {
	out, _, err := runCLI(t, "--format", "json", "load", filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E005", resp.Error.Code)
}

func TestLoad_RejectedEntryExitsFailure(t *testing.T) {
	dir := t.TempDir()
	targets := make([]string, store.DefaultMaxArity+1)
	for i := range targets {
		targets[i] = fmt.Sprintf("{type: \"Concept\", name: \"n%d\"}", i)
	}
	src := fmt.Sprintf("links: [\n\t{type: \"List\", targets: [%s]},\n]\n", strings.Join(targets, ", "))
	path := filepath.Join(dir, "wide.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	out, _, err := runCLI(t, "--db", filepath.Join(dir, "kb.db"), "load", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, atom.ErrArityExceeded)
	assert.Contains(t, out, "Error [E210]")
	assert.Contains(t, out, "wide.cue:2")
}

func TestNode(t *testing.T) {
	dbPath := loadedSQLite(t)

	out, _, err := runCLI(t, "--db", dbPath, "node", "Concept", "chimp")
	require.NoError(t, err)
	assert.Equal(t, chimpHandle()+"\n", out)

	out, _, err = runCLI(t, "--db", dbPath, "node", "Concept", "gorilla")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NODE_NOT_FOUND]")
}

func TestMatch_GoldenJSON(t *testing.T) {
	dbPath := loadedSQLite(t)

	out, _, err := runCLI(t, "--db", dbPath, "--format", "json", "match", "Inheritance", chimpHandle(), "*")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "match_inheritance_chimp", []byte(out))
}

func TestMatch_Text(t *testing.T) {
	dbPath := loadedSQLite(t)
	mammal := hashing.TerminalHash(testutil.ConceptType, "mammal")

	out, _, err := runCLI(t, "--db", dbPath, "match", "Inheritance", chimpHandle(), mammal)
	require.NoError(t, err)
	want := hashing.ExpressionHash(hashing.NamedTypeHash("Inheritance"), []string{chimpHandle(), mammal})
	assert.Equal(t, want+" "+chimpHandle()+" "+mammal+"\n", out)
}

func TestMatch_ExactMissExitsFailure(t *testing.T) {
	dbPath := loadedSQLite(t)
	mammal := hashing.TerminalHash(testutil.ConceptType, "mammal")

	out, _, err := runCLI(t, "--db", dbPath, "--format", "json", "match", "Inheritance", mammal, chimpHandle())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "LINK_NOT_FOUND", resp.Error.Code)
}

func TestMatch_WildcardMissIsEmpty(t *testing.T) {
	dbPath := loadedSQLite(t)
	plant := hashing.TerminalHash(testutil.ConceptType, "plant")

	out, _, err := runCLI(t, "--db", dbPath, "--format", "json", "match", "Inheritance", plant, "*")
	require.NoError(t, err)
	assert.Equal(t, "{\"status\":\"ok\",\"data\":[]}\n", out)
}

func TestTypeAndTemplate(t *testing.T) {
	dbPath := loadedSQLite(t)

	out, _, err := runCLI(t, "--db", dbPath, "type", "Similarity", "--toplevel-only")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), len(testutil.AnimalSimilarities))

	out, _, err = runCLI(t, "--db", dbPath, "template", `["Inheritance", "Concept", "Concept"]`)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), len(testutil.AnimalInheritances))

	_, _, err = runCLI(t, "--db", dbPath, "template", `{not a list`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNodes(t *testing.T) {
	dbPath := loadedSQLite(t)

	out, _, err := runCLI(t, "--db", dbPath, "nodes", "Concept", "--names")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(testutil.AnimalConcepts, "\n")+"\n", out)

	out, _, err = runCLI(t, "--db", dbPath, "nodes", "Concept")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, hashing.TerminalHash(testutil.ConceptType, "human")+"\n"))
}

func TestTargetsAndIncoming(t *testing.T) {
	dbPath := loadedSQLite(t)
	mammal := hashing.TerminalHash(testutil.ConceptType, "mammal")
	link := hashing.ExpressionHash(hashing.NamedTypeHash("Inheritance"), []string{chimpHandle(), mammal})

	out, _, err := runCLI(t, "--db", dbPath, "targets", link)
	require.NoError(t, err)
	assert.Equal(t, chimpHandle()+"\n"+mammal+"\n", out)

	out, _, err = runCLI(t, "--db", dbPath, "incoming", chimpHandle())
	require.NoError(t, err)
	assert.Contains(t, out, link)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	_, _, err = runCLI(t, "--db", dbPath, "targets", chimpHandle())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestKeys_GoldenJSON(t *testing.T) {
	human := hashing.TerminalHash(testutil.ConceptType, "human")
	monkey := hashing.TerminalHash(testutil.ConceptType, "monkey")

	out, _, err := runCLI(t, "--format", "json", "keys", "Similarity", human, monkey)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "keys_similarity_human_monkey", []byte(out))
}

func TestClear(t *testing.T) {
	dbPath := loadedSQLite(t)

	out, _, err := runCLI(t, "--db", dbPath, "clear")
	require.NoError(t, err)
	assert.Equal(t, "cleared\n", out)

	out, _, err = runCLI(t, "--db", dbPath, "count")
	require.NoError(t, err)
	assert.Equal(t, "nodes: 0\nlinks: 0\n", out)
}

func TestMemoryBackendByDefault(t *testing.T) {
	out, _, err := runCLI(t, "count")
	require.NoError(t, err)
	assert.Equal(t, "nodes: 0\nlinks: 0\n", out)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "hyperdb.yaml")
	cfg := fmt.Sprintf("backend:\n  kind: sqlite\n  path: %s\nstore:\n  unordered_link_types: []\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	_, _, err := runCLI(t, "--config", cfgPath, "load", writeAnimalsKB(t, dir))
	require.NoError(t, err)
	_, err = os.Stat(dbPath)
	require.NoError(t, err)

	// Similarity is ordered under this config, so only chimp-first pairs match.
	out, _, err := runCLI(t, "--config", cfgPath, "match", "Similarity", chimpHandle(), "*")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
}

func TestConfigFile_Invalid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backend:\n  kind: sqlite\n"), 0644))

	out, _, err := runCLI(t, "--config", cfgPath, "count")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "backend.path is required")
}

func TestVerboseLogsToStderr(t *testing.T) {
	dir := t.TempDir()

	out, errOut, err := runCLI(t, "-v", "--format", "json", "--db", filepath.Join(dir, "kb.db"), "load", writeAnimalsKB(t, dir))
	require.NoError(t, err)
	assert.Contains(t, errOut, "Found 1 CUE file(s)")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestServe_StopsOnCancel(t *testing.T) {
	dbPath := loadedSQLite(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, _, err := runCLIContext(t, ctx, "--db", dbPath, "serve", "--addr", "127.0.0.1:0")
	require.NoError(t, err)

	out, _, err := runCLI(t, "--db", dbPath, "count")
	require.NoError(t, err)
	assert.Equal(t, "nodes: 14\nlinks: 19\n", out)
}
