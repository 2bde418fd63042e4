package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const seedYAML = `products:
  - id: 12
    name: Camiseta Azul
    sku: CAM-001
    price: 19.9
    manage_stock: true
    stock_quantity: 10
  - id: 13
    name: Camiseta Roja
    sku: CAM-002
`

type cli struct {
	t  *testing.T
	db string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("CATALOGCHAT_CONFIG", "")
	dir := t.TempDir()
	c := &cli{t: t, db: filepath.Join(dir, "cli.db")}
	seed := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(seed, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if out := c.run("seed", seed); !strings.Contains(out, "seeded 2 products") {
		t.Fatalf("seed output = %q", out)
	}
	return c
}

func (c *cli) exec(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(append([]string{"--db", c.db}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func (c *cli) run(args ...string) string {
	c.t.Helper()
	out, err := c.exec(args...)
	if err != nil {
		c.t.Fatalf("%v: %v", args, err)
	}
	return out
}

func TestCLI_AskConfirm(t *testing.T) {
	c := newCLI(t)

	out := c.run("ask", "productos", "sin", "precio")
	if !strings.Contains(out, "Hay 1 producto sin precio.") {
		t.Errorf("ask output = %q", out)
	}

	out = c.run("--format", "json", "ask", "cambia el precio del #12 a 25")
	var resp struct {
		Mode         string `json:"mode"`
		Confirmation struct {
			PendingID string `json:"pending_id"`
		} `json:"confirmation"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Mode != "execute" || resp.Confirmation.PendingID == "" {
		t.Fatalf("response = %+v", resp)
	}

	out = c.run("confirm")
	if !strings.Contains(out, "Hecho") {
		t.Errorf("confirm output = %q", out)
	}
	out = c.run("ask", "precio del #12")
	if !strings.Contains(out, "es 25") {
		t.Errorf("price after confirm: %q", out)
	}

	if _, err := c.exec("confirm"); err == nil {
		t.Error("confirm with nothing pending should fail")
	}
}

func TestCLI_Cancel(t *testing.T) {
	c := newCLI(t)
	c.run("ask", "cambia el stock del #12 a 3")
	out := c.run("cancel")
	if !strings.Contains(out, "cancelé") {
		t.Errorf("cancel output = %q", out)
	}
}

func TestCLI_Config(t *testing.T) {
	c := newCLI(t)
	c.run("config", "set", "pending.ttl", "10m")
	if out := c.run("config", "get", "pending.ttl"); strings.TrimSpace(out) != "10m" {
		t.Errorf("get = %q", out)
	}
	if out := c.run("config", "list"); !strings.Contains(out, "pending.ttl = 10m") {
		t.Errorf("list = %q", out)
	}
	if _, err := c.exec("config", "set", "nlp.api_key", "sk-123"); err == nil {
		t.Error("unknown key accepted")
	}
	c.run("config", "unset", "pending.ttl")
	if _, err := c.exec("config", "get", "pending.ttl"); err == nil {
		t.Error("unset key still readable")
	}
}

func TestCLI_DiagnoseYAML(t *testing.T) {
	c := newCLI(t)
	out := c.run("diagnose", "--top", "1")
	for _, want := range []string{"health:", "categories:", "stock:", "active: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnose output lacks %q:\n%s", want, out)
		}
	}
}

func TestCLI_Version(t *testing.T) {
	c := &cli{t: t, db: filepath.Join(t.TempDir(), "v.db")}
	if out := c.run("version"); !strings.Contains(out, "catalogchat") {
		t.Errorf("version output = %q", out)
	}
}
