package journal

import (
	"strings"
	"time"

	"AutoLP-Chain/internal/operation"

	"github.com/ethereum/go-ethereum/common"
)

// SortOrder defines how records are ordered when listing.
type SortOrder int

const (
	// SortByCreatedDesc returns the most recent operations first.
	SortByCreatedDesc SortOrder = iota
	// SortByCreatedAsc returns the oldest operations first.
	SortByCreatedAsc
)

// ListOptions controls which records are selected.
type ListOptions struct {
	Limit      int
	Offset     int
	Kinds      []operation.Kind
	Statuses   []operation.Status
	Wallet     string
	CreatedGTE int64
	Order      SortOrder
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 500 {
		opts.Limit = 500
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	opts.Kinds = normalizeKinds(opts.Kinds)
	opts.Statuses = normalizeStatuses(opts.Statuses)
	opts.Wallet = strings.TrimSpace(opts.Wallet)
	if common.IsHexAddress(opts.Wallet) {
		opts.Wallet = common.HexToAddress(opts.Wallet).Hex()
	}
	if opts.Order != SortByCreatedAsc {
		opts.Order = SortByCreatedDesc
	}
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of records returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset skips the first n matching records.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithKinds filters by operation kind.
func WithKinds(kinds ...operation.Kind) ListOption {
	return func(opts *ListOptions) { opts.Kinds = append(opts.Kinds[:0], kinds...) }
}

// WithStatuses filters by outcome.
func WithStatuses(statuses ...operation.Status) ListOption {
	return func(opts *ListOptions) { opts.Statuses = append(opts.Statuses[:0], statuses...) }
}

// WithWallet filters by wallet address.
func WithWallet(wallet string) ListOption {
	return func(opts *ListOptions) { opts.Wallet = wallet }
}

// WithSince keeps records created at or after ts.
func WithSince(ts time.Time) ListOption {
	return func(opts *ListOptions) {
		if ts.IsZero() {
			opts.CreatedGTE = 0
			return
		}
		opts.CreatedGTE = ts.Unix()
	}
}

// WithSortOrder changes the order of returned records.
func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// NewListOptions applies option functions on top of defaults.
func NewListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func normalizeKinds(input []operation.Kind) []operation.Kind {
	seen := make(map[operation.Kind]struct{}, len(input))
	var result []operation.Kind
	for _, kind := range input {
		kind = operation.Kind(strings.ToUpper(strings.TrimSpace(string(kind))))
		if !IsValidKind(kind) {
			continue
		}
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		result = append(result, kind)
	}
	return result
}

func normalizeStatuses(input []operation.Status) []operation.Status {
	seen := make(map[operation.Status]struct{}, len(input))
	var result []operation.Status
	for _, status := range input {
		status = operation.Status(strings.ToLower(strings.TrimSpace(string(status))))
		if !IsValidStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	return result
}

func (opts ListOptions) matches(r Record) bool {
	if len(opts.Kinds) > 0 {
		matched := false
		for _, kind := range opts.Kinds {
			if r.Kind == kind {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if r.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.Wallet != "" && !strings.EqualFold(r.Wallet, opts.Wallet) {
		return false
	}
	if opts.CreatedGTE > 0 && r.CreatedAt < opts.CreatedGTE {
		return false
	}
	return true
}
