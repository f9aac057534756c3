package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := "market:\n  symbols: [btc]\nledger:\n  path: " + filepath.Join(dir, "p.json") + "\n  initial_balance: 250\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseCommandReadsStdin(t *testing.T) {
	out, err := execute(t, "buy_crypto_price(\"BTC\", 10, \"x\")\nsell_crypto_price(\"DOGE\", 5, \"y\")\n",
		"parse", "--symbols", "BTC")
	require.NoError(t, err)
	assert.Contains(t, out, "commands: 1")
	assert.Contains(t, out, `line 1: buy_crypto_price("BTC", 10, "x")`)
	assert.Contains(t, out, "rejected: 1")
}

func TestParseCommandReportsEmptyReply(t *testing.T) {
	out, err := execute(t, "just thinking", "parse", "--symbols", "BTC")
	require.NoError(t, err)
	assert.Contains(t, out, "no recognised command")
}

func TestPortfolioAndReset(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "", "--config", cfg, "portfolio")
	require.NoError(t, err)
	assert.Contains(t, out, "$250.00")

	out, err = execute(t, "n\n", "--config", cfg, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "aborted")

	out, err = execute(t, "", "--config", cfg, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "ledger reset")
}
