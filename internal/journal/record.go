// Package journal keeps an append-only history of orchestrator operations
// for the status API and for post-run inspection.
package journal

import (
	"math/big"

	"AutoLP-Chain/internal/operation"
)

// Record 是一次操作的落库结构。金额以十进制整数字符串保存，避免精度丢失。
type Record struct {
	ID        string           `json:"id"`
	Kind      operation.Kind   `json:"kind"`
	Wallet    string           `json:"wallet"`
	Token     string           `json:"token"`
	Symbol    string           `json:"symbol"`
	AmountIn  string           `json:"amount_in"`
	MinOut    string           `json:"min_out"`
	Deadline  string           `json:"deadline"`
	Attempts  int              `json:"attempts"`
	Stage     operation.Stage  `json:"stage"`
	Status    operation.Status `json:"status"`
	TxHash    string           `json:"tx_hash,omitempty"`
	Fallback  bool             `json:"fallback"`
	Reason    string           `json:"reason,omitempty"`
	ErrorCode string           `json:"error_code,omitempty"`
	CreatedAt int64            `json:"created_at"`
	UpdatedAt int64            `json:"updated_at"`
}

// FromResult 将操作结果转换为日志记录。
func FromResult(r operation.Result) Record {
	return Record{
		ID:        r.ID,
		Kind:      r.Kind,
		Wallet:    r.Wallet.Hex(),
		Token:     r.Token.Hex(),
		Symbol:    r.Symbol,
		AmountIn:  amount(r.AmountIn),
		MinOut:    amount(r.MinOut),
		Deadline:  amount(r.Deadline),
		Attempts:  r.Attempts,
		Stage:     r.Stage,
		Status:    r.Status(),
		TxHash:    r.TransactionHash,
		Fallback:  r.Fallback,
		Reason:    r.Reason,
		ErrorCode: r.ErrorCode,
		CreatedAt: r.StartedAt.Unix(),
		UpdatedAt: r.FinishedAt.Unix(),
	}
}

func amount(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// IsValidStatus 检查状态是否为支持的枚举值。
func IsValidStatus(status operation.Status) bool {
	switch status {
	case operation.StatusSucceeded, operation.StatusSkipped, operation.StatusFailed:
		return true
	default:
		return false
	}
}

// IsValidKind 检查操作类型是否为支持的枚举值。
func IsValidKind(kind operation.Kind) bool {
	switch kind {
	case operation.KindAdd, operation.KindWithdraw, operation.KindSwap, operation.KindUnwrap:
		return true
	default:
		return false
	}
}
