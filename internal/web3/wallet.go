package web3

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet pairs an address with its signing key. Wallets live for one process
// run and are never persisted.
type Wallet struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// NewWallet parses a hex private key, with or without the 0x prefix.
func NewWallet(hexKey string) (*Wallet, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, errors.New("私钥不能为空")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return WalletFromKey(key), nil
}

// WalletFromKey wraps an existing key.
func WalletFromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{Address: crypto.PubkeyToAddress(key.PublicKey), key: key}
}

// Sign signs tx for the given chain with the wallet key.
func (w *Wallet) Sign(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if w == nil || w.key == nil {
		return nil, errors.New("钱包未初始化")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
}

// Short returns the abbreviated address used in log lines.
func (w *Wallet) Short() string {
	hex := w.Address.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
