package journal

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	xerrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/operation"

	"github.com/ethereum/go-ethereum/common"
)

var (
	walletA = common.HexToAddress("0x00000000000000000000000000000000000c0001")
	walletB = common.HexToAddress("0x00000000000000000000000000000000000c0002")
)

func record(id string, kind operation.Kind, status operation.Status, wallet common.Address, created int64) Record {
	return Record{
		ID:        id,
		Kind:      kind,
		Wallet:    wallet.Hex(),
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestFromResultCopiesOutcome(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	res := operation.Result{
		ID:              "op-1",
		Kind:            operation.KindWithdraw,
		Wallet:          walletA,
		Token:           common.HexToAddress("0x00000000000000000000000000000000000b0001"),
		Symbol:          "TKN",
		Success:         true,
		TransactionHash: "0xabc",
		Stage:           operation.StageDone,
		Attempts:        4,
		Fallback:        true,
		AmountIn:        big.NewInt(800),
		MinOut:          big.NewInt(360),
		Deadline:        big.NewInt(1740831600),
		StartedAt:       started,
		FinishedAt:      started.Add(3 * time.Second),
	}

	rec := FromResult(res)
	if rec.Status != operation.StatusSucceeded {
		t.Fatalf("unexpected status %q", rec.Status)
	}
	if rec.AmountIn != "800" || rec.MinOut != "360" || rec.Deadline != "1740831600" {
		t.Fatalf("unexpected amounts %+v", rec)
	}
	if rec.Wallet != walletA.Hex() || rec.Symbol != "TKN" || !rec.Fallback || rec.Attempts != 4 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.UpdatedAt-rec.CreatedAt != 3 {
		t.Fatalf("unexpected timestamps %d %d", rec.CreatedAt, rec.UpdatedAt)
	}
}

func TestFromResultFailure(t *testing.T) {
	res := operation.Result{
		ID:        "op-2",
		Kind:      operation.KindAdd,
		Stage:     operation.StageBalanceCheck,
		Reason:    "insufficient WETH",
		ErrorCode: "INSUFFICIENT_BALANCE",
		Err:       errors.New("boom"),
	}
	rec := FromResult(res)
	if rec.Status != operation.StatusFailed {
		t.Fatalf("expected failed status, got %q", rec.Status)
	}
	if rec.AmountIn != "" || rec.ErrorCode != "INSUFFICIENT_BALANCE" || rec.Stage != operation.StageBalanceCheck {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestNewListOptionsNormalises(t *testing.T) {
	opts := NewListOptions(
		WithLimit(10000),
		WithOffset(-3),
		WithKinds("add", "ADD", "bogus", " swap "),
		WithStatuses("FAILED", "unknown"),
		WithWallet(strings.ToLower(walletA.Hex())),
	)
	if opts.Limit != 500 || opts.Offset != 0 {
		t.Fatalf("unexpected paging %d/%d", opts.Limit, opts.Offset)
	}
	if len(opts.Kinds) != 2 || opts.Kinds[0] != operation.KindAdd || opts.Kinds[1] != operation.KindSwap {
		t.Fatalf("unexpected kinds %v", opts.Kinds)
	}
	if len(opts.Statuses) != 1 || opts.Statuses[0] != operation.StatusFailed {
		t.Fatalf("unexpected statuses %v", opts.Statuses)
	}
	if opts.Wallet != walletA.Hex() {
		t.Fatalf("wallet not checksummed: %s", opts.Wallet)
	}
	if def := NewListOptions(); def.Limit != 50 || def.Order != SortByCreatedDesc {
		t.Fatalf("unexpected defaults %+v", def)
	}
}

func TestMemoryStoreListAndFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	seed := []Record{
		record("1", operation.KindAdd, operation.StatusSucceeded, walletA, 100),
		record("2", operation.KindAdd, operation.StatusFailed, walletB, 110),
		record("3", operation.KindSwap, operation.StatusSkipped, walletA, 120),
		record("4", operation.KindWithdraw, operation.StatusSucceeded, walletA, 120),
	}
	for _, r := range seed {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := store.List(ctx, NewListOptions())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := ids(all); got != "4,3,2,1" {
		t.Fatalf("unexpected order %s", got)
	}

	asc, _ := store.List(ctx, NewListOptions(WithSortOrder(SortByCreatedAsc)))
	if got := ids(asc); got != "1,2,3,4" {
		t.Fatalf("unexpected ascending order %s", got)
	}

	filtered, _ := store.List(ctx, NewListOptions(WithWallet(walletA.Hex()), WithStatuses(operation.StatusSucceeded)))
	if got := ids(filtered); got != "4,1" {
		t.Fatalf("unexpected filter result %s", got)
	}

	since, _ := store.List(ctx, NewListOptions(WithSince(time.Unix(110, 0)), WithKinds(operation.KindAdd)))
	if got := ids(since); got != "2" {
		t.Fatalf("unexpected since result %s", got)
	}

	page, _ := store.List(ctx, NewListOptions(WithLimit(2), WithOffset(1)))
	if got := ids(page); got != "3,2" {
		t.Fatalf("unexpected page %s", got)
	}

	empty, _ := store.List(ctx, NewListOptions(WithOffset(10)))
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}

func TestMemoryStoreCapacity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Append(ctx, record(id, operation.KindSwap, operation.StatusSucceeded, walletA, int64(i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	list, _ := store.List(ctx, NewListOptions())
	if got := ids(list); got != "c,b" {
		t.Fatalf("expected oldest record evicted, got %s", got)
	}
}

func TestMemoryStoreRejectsEmptyID(t *testing.T) {
	err := NewMemoryStore(1).Append(context.Background(), Record{})
	if !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	fallback := record("3", operation.KindWithdraw, operation.StatusSucceeded, walletA, 130)
	fallback.Fallback = true
	for _, r := range []Record{
		record("1", operation.KindAdd, operation.StatusSucceeded, walletA, 100),
		record("2", operation.KindAdd, operation.StatusFailed, walletB, 110),
		fallback,
		record("4", operation.KindSwap, operation.StatusSkipped, walletB, 140),
	} {
		_ = store.Append(ctx, r)
	}

	stats, err := store.Stats(ctx, NewListOptions())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Succeeded != 2 || stats.Failed != 1 || stats.Skipped != 1 || stats.Fallbacks != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.ByKind["ADD"] != 2 || stats.ByKind["WITHDRAW"] != 1 || stats.ByKind["SWAP"] != 1 {
		t.Fatalf("unexpected kind breakdown %v", stats.ByKind)
	}
	if stats.OldestCreated != 100 || stats.NewestCreated != 140 {
		t.Fatalf("unexpected range %d..%d", stats.OldestCreated, stats.NewestCreated)
	}

	walletStats, _ := store.Stats(ctx, NewListOptions(WithWallet(walletB.Hex())))
	if walletStats.Total != 2 || walletStats.Failed != 1 {
		t.Fatalf("unexpected wallet stats %+v", walletStats)
	}
}

type failingStore struct {
	MemoryStore
	err error
}

func (f *failingStore) Append(context.Context, Record) error { return f.err }

func TestReporterAppendsAndSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	rep := Reporter(store)
	rep.Report(ctx, operation.Result{ID: "op", Kind: operation.KindUnwrap, Skipped: true})

	list, _ := store.List(ctx, NewListOptions())
	if len(list) != 1 || list[0].Status != operation.StatusSkipped {
		t.Fatalf("unexpected journal %+v", list)
	}

	// Must not panic or propagate.
	Reporter(&failingStore{err: errors.New("disk full")}).Report(ctx, operation.Result{ID: "x"})
	Reporter(nil).Report(ctx, operation.Result{ID: "y"})
}

func TestBuildFilterClause(t *testing.T) {
	where, args := buildFilterClause(NewListOptions())
	if where != "" || len(args) != 0 {
		t.Fatalf("expected no filter, got %q %v", where, args)
	}

	where, args = buildFilterClause(NewListOptions(
		WithKinds(operation.KindAdd, operation.KindSwap),
		WithStatuses(operation.StatusFailed),
		WithWallet(walletA.Hex()),
		WithSince(time.Unix(500, 0)),
	))
	want := " WHERE kind IN (?, ?) AND status IN (?) AND wallet = ? AND created_at >= ?"
	if where != want {
		t.Fatalf("unexpected clause %q", where)
	}
	if len(args) != 5 || args[0] != "ADD" || args[2] != "failed" || args[3] != walletA.Hex() || args[4] != int64(500) {
		t.Fatalf("unexpected args %v", args)
	}
}

func ids(records []Record) string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return strings.Join(out, ",")
}
