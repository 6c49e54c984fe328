package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	content := `chains:
  sepolia:
    type: evm
    rpc_url: https://rpc.example.org
    chain_id: 11155111
    router: "0x1111111111111111111111111111111111111111"
    weth: "0x2222222222222222222222222222222222222222"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	chain, ok := defs.Chains["sepolia"]
	if !ok {
		t.Fatalf("chain not loaded: %+v", defs)
	}
	if chain.ChainID != 11155111 {
		t.Fatalf("unexpected chain id %d", chain.ChainID)
	}
	if err := chain.Validate("sepolia"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if chain.RouterAddress().Hex() != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("unexpected router %s", chain.RouterAddress().Hex())
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if defs.Chains == nil || len(defs.Chains) != 0 {
		t.Fatalf("expected empty chain map, got %+v", defs.Chains)
	}
}

func TestValidateRejectsBadRouter(t *testing.T) {
	def := ChainDefinition{RPCURL: "http://localhost:8545", Router: "nope", WETH: "0x2222222222222222222222222222222222222222"}
	if err := def.Validate("local"); err == nil {
		t.Fatalf("expected invalid router error")
	}
}

func TestNewWalletAcceptsPrefix(t *testing.T) {
	const key = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	a, err := NewWallet(key)
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	b, err := NewWallet("0x" + key + "\n")
	if err != nil {
		t.Fatalf("new wallet with prefix: %v", err)
	}
	if a.Address != b.Address {
		t.Fatalf("addresses differ: %s vs %s", a.Address.Hex(), b.Address.Hex())
	}
	if len(a.Short()) != 13 {
		t.Fatalf("unexpected short form %q", a.Short())
	}
	if _, err := NewWallet("   "); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
