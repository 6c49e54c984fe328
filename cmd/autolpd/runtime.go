package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"time"

	"AutoLP-Chain/internal/api"
	"AutoLP-Chain/internal/approval"
	"AutoLP-Chain/internal/config"
	"AutoLP-Chain/internal/cooldown"
	"AutoLP-Chain/internal/dex"
	"AutoLP-Chain/internal/events"
	"AutoLP-Chain/internal/journal"
	"AutoLP-Chain/internal/observability/alerting"
	"AutoLP-Chain/internal/observability/metrics"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/internal/quote"
	"AutoLP-Chain/internal/scheduler"
	"AutoLP-Chain/internal/source"
	"AutoLP-Chain/internal/storage/sqldb"
	"AutoLP-Chain/internal/submitter"
	"AutoLP-Chain/internal/web3"
	"AutoLP-Chain/internal/web3/provider"
	"AutoLP-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

// runtime 持有一次命令执行所需的全部依赖，并负责按相反顺序释放。
type runtime struct {
	cfg       *config.Config
	log       *slog.Logger
	registry  *provider.Registry
	chain     *provider.Chain
	contracts *dex.Contracts
	orch      *operation.Orchestrator
	journal   journal.Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	swapGate  *cooldown.Gate
	closers   []io.Closer
}

// newStatusRuntime 只装配存储、指标与冷却记录，不连接链节点。
func newStatusRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: logger.Named("autolpd"), metrics: metrics.New(true)}
	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	store, err := openJournal(ctx, cfg.Storage.Journal)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.journal = store
	rt.closers = append(rt.closers, store)

	cooldownStore, closer, err := openCooldownStore(ctx, cfg.Storage.Cooldown)
	if err != nil {
		rt.close()
		return nil, err
	}
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}
	rt.swapGate = cooldown.NewGate(cooldownStore, cfg.Swap.CooldownKey,
		time.Duration(cfg.Swap.CooldownHours)*time.Hour, nil)
	return rt, nil
}

// newRuntime 在状态依赖之上连接默认链并构造编排器。
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt, err := newStatusRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := events.New(ctx, events.Config{
		Driver: cfg.Events.Driver,
		Redis: events.RedisConfig{
			Address:  cfg.Events.Redis.Address,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
			Key:      cfg.Events.Redis.Prefix,
		},
		RabbitMQ: events.RabbitMQConfig{
			URL:     cfg.Events.RabbitMQ.URL,
			Queue:   cfg.Events.RabbitMQ.Queue,
			Durable: true,
		},
		Kafka: events.KafkaConfig{
			Brokers: cfg.Events.Kafka.Brokers,
			Topic:   cfg.Events.Kafka.Topic,
		},
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.publisher = publisher
	rt.closers = append(rt.closers, publisher)

	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.registry = registry
	chain, err := registry.Default()
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.chain = chain
	rt.contracts = dex.NewContracts(chain.Gateway, chain.Definition.RouterAddress(), chain.Definition.WETHAddress())

	opCfg, subCfg, err := engineConfig(cfg)
	if err != nil {
		rt.close()
		return nil, err
	}
	quoteFallback, err := dex.ParseUnits(cfg.Liquidity.QuoteFallback, 18)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("quote_fallback 无效: %w", err)
	}

	sub := submitter.New(chain.Gateway, subCfg, submitter.WithObserver(rt.metrics))
	rt.orch = operation.New(
		rt.contracts,
		quote.New(rt.contracts, quoteFallback),
		approval.NewManager(rt.contracts, sub, rt.metrics),
		sub,
		dex.NewTokenCache(rt.contracts),
		opCfg,
		operation.WithReporter(journal.Reporter(rt.journal)),
		operation.WithReporter(events.Reporter(rt.publisher)),
		operation.WithReporter(rt.metrics),
		operation.WithReporter(alertReporter(cfg.Alerting)),
	)

	rt.log.Info("运行时已就绪",
		slog.String("chain", chain.Name),
		slog.String("router", rt.contracts.Router().Hex()),
		slog.String("journal", cfg.Storage.Journal.Driver),
		slog.String("cooldown", cfg.Storage.Cooldown.Driver),
		slog.String("events", cfg.Events.Driver),
	)
	return rt, nil
}

// engineConfig 将 JSON 配置转换为编排器与提交器的显式配置。
func engineConfig(cfg *config.Config) (operation.Config, submitter.Config, error) {
	price, err := dex.ParseGwei(cfg.Gas.PriceGwei)
	if err != nil {
		return operation.Config{}, submitter.Config{}, fmt.Errorf("gas.price_gwei 无效: %w", err)
	}
	swapPrice, err := dex.ParseGwei(cfg.Gas.SwapPriceGwei)
	if err != nil {
		return operation.Config{}, submitter.Config{}, fmt.Errorf("gas.swap_price_gwei 无效: %w", err)
	}
	contribution, err := dex.ParseUnits(cfg.Liquidity.FixedETH, 18)
	if err != nil {
		return operation.Config{}, submitter.Config{}, fmt.Errorf("liquidity.fixed_eth 无效: %w", err)
	}

	g := cfg.Gas
	opCfg := operation.Config{
		Contribution:      contribution,
		LiquiditySlippage: cfg.Liquidity.Slippage,
		SwapSlippage:      cfg.Swap.Slippage,
		WithdrawPercent:   cfg.Liquidity.WithdrawPercent,
		SwapFraction:      cfg.Swap.FractionPercent,
		Gas: operation.GasConfig{
			Liquidity: web3.GasParams{Price: price, Limit: g.Limit},
			Withdraw:  web3.GasParams{Price: price, Limit: g.WithdrawLimit},
			Approve:   web3.GasParams{Price: price, Limit: g.ApproveLimit},
			LPApprove: web3.GasParams{Price: price, Limit: g.LPApproveLimit},
			Swap:      web3.GasParams{Price: swapPrice, Limit: g.SwapLimit},
			Unwrap:    web3.GasParams{Price: price, Limit: g.UnwrapLimit},
		},
	}

	s := cfg.Submission
	subCfg := submitter.Config{
		MaxRetries:      s.MaxRetries,
		RetryDelay:      time.Duration(s.RetryDelaySeconds) * time.Second,
		Deadline:        time.Duration(s.DeadlineSeconds) * time.Second,
		ReceiptTimeout:  time.Duration(s.ReceiptTimeoutSeconds) * time.Second,
		PollInterval:    time.Duration(s.ReceiptPollMillis) * time.Millisecond,
		Preflight:       s.Preflight == nil || *s.Preflight,
		FallbackGasBump: g.FallbackBump,
	}
	return opCfg, subCfg, nil
}

func schedulerConfig(cfg *config.Config, contribution *big.Int) scheduler.Config {
	sc := cfg.Schedule
	return scheduler.Config{
		Contribution:     contribution,
		TokensPerWallet:  cfg.Liquidity.TokensPerWallet,
		OperationDelay:   time.Duration(sc.OperationDelaySeconds) * time.Second,
		WalletDelay:      time.Duration(sc.WalletDelaySeconds) * time.Second,
		CycleCooldown:    time.Duration(sc.CycleCooldownMinutes) * time.Minute,
		PhaseCooldown:    time.Duration(sc.PhaseCooldownHours) * time.Hour,
		ProgressInterval: time.Duration(sc.ProgressIntervalSeconds) * time.Second,
	}
}

// trafficConfig 解析锚定代币与目标代币，并把小数金额区间换算为千分位。
func trafficConfig(cfg *config.Config, tokens []dex.Token) (scheduler.TrafficConfig, error) {
	t := cfg.Traffic
	anchor, ok := source.FindByName(tokens, t.AnchorSymbol)
	if !ok {
		return scheduler.TrafficConfig{}, fmt.Errorf("代币列表中未找到锚定代币 %s", t.AnchorSymbol)
	}
	var target dex.Token
	if t.TargetAddress != "" {
		if !common.IsHexAddress(t.TargetAddress) {
			return scheduler.TrafficConfig{}, fmt.Errorf("traffic.target_address 无效: %q", t.TargetAddress)
		}
		addr := common.HexToAddress(t.TargetAddress)
		if target, ok = source.FindByAddress(tokens, addr); !ok {
			target = dex.Token{Address: addr, Name: dex.UnknownSymbol}
		}
	}
	minRandom, err := scheduler.Thousandths(t.RandomMinAmount)
	if err != nil {
		return scheduler.TrafficConfig{}, err
	}
	maxRandom, err := scheduler.Thousandths(t.RandomMaxAmount)
	if err != nil {
		return scheduler.TrafficConfig{}, err
	}

	return scheduler.TrafficConfig{
		Anchor:           anchor,
		Target:           target,
		AnchorSwaps:      scheduler.Range{Min: int64(t.AnchorMinSwaps), Max: int64(t.AnchorMaxSwaps)},
		AnchorAmount:     scheduler.Range{Min: t.AnchorMinAmount, Max: t.AnchorMaxAmount},
		RandomSwaps:      t.RandomSwaps,
		RandomAmount:     scheduler.Range{Min: minRandom, Max: maxRandom},
		TargetSwaps:      scheduler.Range{Min: int64(t.TargetMinSwaps), Max: int64(t.TargetMaxSwaps)},
		TargetAmount:     scheduler.Range{Min: t.TargetMinAmount, Max: t.TargetMaxAmount},
		Slippage:         t.Slippage,
		OperationDelay:   time.Duration(cfg.Schedule.OperationDelaySeconds) * time.Second,
		RoundCooldown:    time.Duration(t.RoundCooldownHours) * time.Hour,
		ProgressInterval: time.Duration(cfg.Schedule.ProgressIntervalSeconds) * time.Second,
	}, nil
}

func openJournal(ctx context.Context, cfg config.JournalStoreConfig) (journal.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return journal.NewMemoryStore(0), nil
	default:
		db, err := sqldb.Open(ctx, sqldb.Config{
			Driver:          cfg.Driver,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("打开交易日志存储失败: %w", err)
		}
		return journal.NewSQLStore(db), nil
	}
}

func openCooldownStore(ctx context.Context, cfg config.CooldownStoreConfig) (cooldown.Store, io.Closer, error) {
	switch cfg.Driver {
	case "", "file":
		store, err := cooldown.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "memory":
		return cooldown.NewMemoryStore(), nil, nil
	case "redis":
		store, err := cooldown.NewRedisStore(ctx, cooldown.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		db, err := sqldb.Open(ctx, sqldb.Config{Driver: cfg.Driver, DSN: cfg.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("打开冷却记录存储失败: %w", err)
		}
		return cooldown.NewSQLStore(db), db, nil
	}
}

// alertReporter 构造告警分发；未启用时返回 nil，WithReporter 会忽略它。
func alertReporter(cfg config.AlertingConfig) operation.Reporter {
	if !cfg.Enabled {
		return nil
	}
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    cfg.WebhookURL,
			Client: &http.Client{Timeout: 10 * time.Second},
		})
	}
	return operation.AlertReporter(alerting.NewFanout(notifiers...))
}

// loadSources 读取私钥与代币列表。
func (rt *runtime) loadSources() ([]*web3.Wallet, []dex.Token, error) {
	wallets, err := source.LoadWallets(rt.cfg.Source.KeysFile)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := source.LoadTokens(rt.cfg.Source.TokensFile)
	if err != nil {
		return nil, nil, err
	}
	rt.log.Info("已加载钱包与代币", slog.Int("wallets", len(wallets)), slog.Int("tokens", len(tokens)))
	return wallets, tokens, nil
}

// scheduler 读取钱包与代币并构造周期调度器。
func (rt *runtime) scheduler(c *cli.Context) (*scheduler.Scheduler, []*web3.Wallet, []dex.Token, error) {
	wallets, tokens, err := rt.loadSources()
	if err != nil {
		return nil, nil, nil, err
	}
	s := scheduler.New(rt.orch, rt.contracts, schedulerConfig(rt.cfg, rt.orch.Config().Contribution),
		scheduler.WithRand(scheduler.NewRand(c.Int64("seed"))))
	return s, wallets, tokens, nil
}

func (rt *runtime) swapDelay() time.Duration {
	return time.Duration(rt.cfg.Swap.DelaySeconds) * time.Second
}

// serveStatus 在后台启动状态 API，直到 ctx 取消。
func (rt *runtime) serveStatus(ctx context.Context) {
	if !rt.cfg.Server.Enabled {
		return
	}
	opts := []api.Option{api.WithMetrics(rt.metrics), api.WithCooldowns(rt.swapGate)}
	if rt.chain != nil {
		if reader, ok := rt.chain.Gateway.(web3.SnapshotReader); ok {
			opts = append(opts, api.WithChain(reader))
		}
	}
	server := api.NewServer(rt.cfg.Server.Address, rt.journal, opts...)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			rt.log.Error("状态 API 异常退出", slog.Any("error", err))
		}
	}()
}

func (rt *runtime) close() {
	if rt.registry != nil {
		rt.registry.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.log.Warn("释放资源失败", slog.Any("error", err))
		}
	}
	rt.closers = nil
}
