// Package source reads the operator's flat wallet and token lists.
package source

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/web3"
	"AutoLP-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// LoadWallets 读取每行一个私钥的文件。
func LoadWallets(path string) ([]*web3.Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开私钥文件失败: %w", err)
	}
	defer file.Close()
	return ParseWallets(file)
}

// ParseWallets 解析私钥列表。空行被忽略，0x 前缀可选；任一非法私钥都会导致失败。
func ParseWallets(r io.Reader) ([]*web3.Wallet, error) {
	var wallets []*web3.Wallet
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		wallet, err := web3.NewWallet(raw)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		wallets = append(wallets, wallet)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取私钥文件失败: %w", err)
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("私钥文件中没有可用的钱包")
	}
	return wallets, nil
}

// LoadTokens 读取 address|name 格式的代币列表文件。
func LoadTokens(path string) ([]dex.Token, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开代币文件失败: %w", err)
	}
	defer file.Close()
	return ParseTokens(file)
}

// ParseTokens 解析代币列表。非法地址与重复地址被跳过，缺省名称为 UNKNOWN。
func ParseTokens(r io.Reader) ([]dex.Token, error) {
	log := logger.Named("source")
	seen := make(map[common.Address]struct{})
	var tokens []dex.Token
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		address, name, _ := strings.Cut(raw, "|")
		address = strings.TrimSpace(address)
		if !common.IsHexAddress(address) {
			log.Warn("跳过非法代币地址", slog.Int("line", line), slog.String("value", address))
			continue
		}
		addr := common.HexToAddress(address)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		name = strings.TrimSpace(name)
		if name == "" {
			name = dex.UnknownSymbol
		}
		tokens = append(tokens, dex.Token{Address: addr, Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取代币文件失败: %w", err)
	}
	return tokens, nil
}

// FindByName returns the first token whose name matches, ignoring case.
func FindByName(tokens []dex.Token, name string) (dex.Token, bool) {
	for _, t := range tokens {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return dex.Token{}, false
}

// FindByAddress returns the token listed at addr.
func FindByAddress(tokens []dex.Token, addr common.Address) (dex.Token, bool) {
	for _, t := range tokens {
		if t.Address == addr {
			return t, true
		}
	}
	return dex.Token{}, false
}
