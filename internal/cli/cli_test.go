package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/imfgraph/pkg/imf"
)

const relationsFixture = "```json\n{\n" +
	`"Cooling system_A001": {"tagID": "A001", "partOf": [], "fulfills": ["cool fluid"], "connectedTo": [], "hasTerminal": []}` + "\n" +
	`"pump system_B22": {"tagID": "B22", "partOf": ["Cooling system_A001"], "fulfills": [], "connectedTo": [], "hasTerminal": [],}` +
	"\n}\n```"

// testCLI isolates config, cache and generator settings from the host.
func testCLI(t *testing.T) *CLI {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	for _, key := range []string{"IMFGRAPH_CACHE_BACKEND", "IMFGRAPH_CACHE_DIR", "IMFGRAPH_STORE_BACKEND", "IMFGRAPH_TASK_BACKEND"} {
		t.Setenv(key, "")
	}
	return New(io.Discard, log.InfoLevel)
}

func execute(t *testing.T, c *CLI, args ...string) error {
	t.Helper()
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := testCLI(t).RootCommand()
	for _, name := range []string{"convert", "recover", "extract", "ask", "render", "serve", "cache", "completion"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestConvertCommand(t *testing.T) {
	c := testCLI(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "pump_manual.json")
	if err := os.WriteFile(input, []byte(relationsFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, c, "convert", input); err != nil {
		t.Fatalf("convert: %v", err)
	}
	doc, err := imf.ReadDocumentFile(filepath.Join(dir, "pump_manual.imf"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(doc.Nodes) != 3 || len(doc.Edges) != 2 {
		t.Errorf("got %d nodes, %d edges; want 3, 2", len(doc.Nodes), len(doc.Edges))
	}
}

func TestConvertCommandStrict(t *testing.T) {
	c := testCLI(t)
	input := filepath.Join(t.TempDir(), "orphan.json")
	data := `{"Pump": {"tagID": "P1", "partOf": ["Missing system"]}}`
	if err := os.WriteFile(input, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, c, "convert", "--strict", input); err == nil {
		t.Error("strict conversion with an unresolved parent succeeded")
	}
	if err := execute(t, c, "convert", input); err != nil {
		t.Errorf("lenient conversion: %v", err)
	}
}

func TestConvertCommandRejectsMalformed(t *testing.T) {
	c := testCLI(t)
	input := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(input, []byte("I could not find any components."), 0o644)

	err := execute(t, c, "convert", input)
	if err == nil || !strings.Contains(err.Error(), "MALFORMED_STRUCTURED_OUTPUT") {
		t.Errorf("err = %v", err)
	}
}

func TestRecoverCommand(t *testing.T) {
	c := testCLI(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "raw.txt")
	output := filepath.Join(dir, "clean.json")
	os.WriteFile(input, []byte(`Sure! {"a": {"b": 1}`), 0o644)

	if err := execute(t, c, "recover", input, "-o", output); err != nil {
		t.Fatalf("recover: %v", err)
	}
	got, _ := os.ReadFile(output)
	if want := "{\n    \"a\": {\n        \"b\": 1\n    }\n}"; string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRenderCommandDOT(t *testing.T) {
	c := testCLI(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "pump.json")
	os.WriteFile(input, []byte(relationsFixture), 0o644)
	if err := execute(t, c, "convert", input); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, c, "render", "-f", "dot", filepath.Join(dir, "pump.imf")); err != nil {
		t.Fatalf("render: %v", err)
	}
	dot, err := os.ReadFile(filepath.Join(dir, "pump.dot"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(dot, []byte("digraph IMF {")) {
		t.Errorf("dot = %q", dot)
	}

	if err := execute(t, c, "render", "-f", "gif", filepath.Join(dir, "pump.imf")); err == nil {
		t.Error("unsupported format accepted")
	}
}

func TestExtractRequiresAPIKey(t *testing.T) {
	c := testCLI(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("IMFGRAPH_API_KEY", "")
	input := filepath.Join(t.TempDir(), "manual.txt")
	os.WriteFile(input, []byte("Pump P1 is part of the cooling system."), 0o644)

	err := execute(t, c, "extract", input, "-o", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "INVALID_CONFIG") {
		t.Errorf("err = %v, want INVALID_CONFIG", err)
	}
}

func TestCacheCommands(t *testing.T) {
	c := testCLI(t)
	if err := execute(t, c, "cache", "clear"); err != nil {
		t.Errorf("clear on empty cache: %v", err)
	}

	input := filepath.Join(t.TempDir(), "pump.json")
	os.WriteFile(input, []byte(relationsFixture), 0o644)
	if err := execute(t, c, "convert", input); err != nil {
		t.Fatal(err)
	}

	fc, ok, err := c.openFileCache()
	if err != nil || !ok {
		t.Fatalf("openFileCache = %v, %v", ok, err)
	}
	if n, _, _ := fc.Size(); n == 0 {
		t.Error("conversion left no cache entries")
	}
	if err := execute(t, c, "cache", "info"); err != nil {
		t.Errorf("info: %v", err)
	}
	if err := execute(t, c, "cache", "clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _, _ := fc.Size(); n != 0 {
		t.Errorf("%d entries after clear", n)
	}
}
