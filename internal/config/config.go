package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"AutoLP-Chain/pkg/logger"

	"github.com/joho/godotenv"
)

// Config 描述了 autolpd 在启动阶段需要加载的全部配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Logging    logger.Config    `json:"logging"`
	Web3       Web3Config       `json:"web3"`
	Source     SourceConfig     `json:"source"`
	Gas        GasConfig        `json:"gas"`
	Submission SubmissionConfig `json:"submission"`
	Liquidity  LiquidityConfig  `json:"liquidity"`
	Swap       SwapConfig       `json:"swap"`
	Traffic    TrafficConfig    `json:"traffic"`
	Schedule   ScheduleConfig   `json:"schedule"`
	Storage    StorageConfig    `json:"storage"`
	Events     EventsConfig     `json:"events"`
	Alerting   AlertingConfig   `json:"alerting"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制只读状态 API 的监听地址。
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// Web3Config 包含访问区块链节点与 AMM 合约所需的信息。
// 当 ChainConfig 为空时，使用 RPCURL/Router/WETH 组成名为 default 的单链配置。
type Web3Config struct {
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
	RPCURL       string `json:"rpc_url"`
	ChainID      int64  `json:"chain_id"`
	Router       string `json:"router"`
	WETH         string `json:"weth"`
}

// SourceConfig 指定私钥与代币列表文件。
type SourceConfig struct {
	KeysFile   string `json:"keys_file"`
	TokensFile string `json:"tokens_file"`
}

// GasConfig 为每类调用提供固定的 gas 价格与上限，不做动态估算。
type GasConfig struct {
	PriceGwei      string `json:"price_gwei"`
	SwapPriceGwei  string `json:"swap_price_gwei"`
	Limit          uint64 `json:"limit"`
	WithdrawLimit  uint64 `json:"withdraw_limit"`
	ApproveLimit   uint64 `json:"approve_limit"`
	LPApproveLimit uint64 `json:"lp_approve_limit"`
	SwapLimit      uint64 `json:"swap_limit"`
	UnwrapLimit    uint64 `json:"unwrap_limit"`
	FallbackBump   uint64 `json:"fallback_bump"`
}

// SubmissionConfig 控制交易提交的重试、截止时间与回执等待。
type SubmissionConfig struct {
	MaxRetries            int   `json:"max_retries"`
	RetryDelaySeconds     int   `json:"retry_delay_seconds"`
	DeadlineSeconds       int64 `json:"deadline_seconds"`
	ReceiptTimeoutSeconds int   `json:"receipt_timeout_seconds"`
	ReceiptPollMillis     int   `json:"receipt_poll_millis"`
	Preflight             *bool `json:"preflight"`
}

// LiquidityConfig 描述添加/撤出流动性的参数。金额均为十进制字符串。
type LiquidityConfig struct {
	FixedETH        string `json:"fixed_eth"`
	Slippage        int    `json:"slippage"`
	TokensPerWallet int    `json:"tokens_per_wallet"`
	WithdrawPercent int    `json:"withdraw_percent"`
	QuoteFallback   string `json:"quote_fallback"`
}

// SwapConfig 描述 swap 自动化入口的参数。
type SwapConfig struct {
	Slippage        int    `json:"slippage"`
	FractionPercent int    `json:"fraction_percent"`
	CooldownHours   int    `json:"cooldown_hours"`
	CooldownKey     string `json:"cooldown_key"`
	DelaySeconds    int    `json:"delay_seconds"`
}

// TrafficConfig 描述模拟自然交易流量的阶段参数。
type TrafficConfig struct {
	AnchorSymbol       string `json:"anchor_symbol"`
	TargetAddress      string `json:"target_address"`
	AnchorMinSwaps     int    `json:"anchor_min_swaps"`
	AnchorMaxSwaps     int    `json:"anchor_max_swaps"`
	AnchorMinAmount    int64  `json:"anchor_min_amount"`
	AnchorMaxAmount    int64  `json:"anchor_max_amount"`
	RandomSwaps        int    `json:"random_swaps"`
	RandomMinAmount    string `json:"random_min_amount"`
	RandomMaxAmount    string `json:"random_max_amount"`
	TargetMinSwaps     int    `json:"target_min_swaps"`
	TargetMaxSwaps     int    `json:"target_max_swaps"`
	TargetMinAmount    int64  `json:"target_min_amount"`
	TargetMaxAmount    int64  `json:"target_max_amount"`
	Slippage           int    `json:"slippage"`
	RoundCooldownHours int    `json:"round_cooldown_hours"`
}

// ScheduleConfig 描述周期调度的节奏。
type ScheduleConfig struct {
	AddCycles               int   `json:"add_cycles"`
	WithdrawCycles          int   `json:"withdraw_cycles"`
	OperationDelaySeconds   int   `json:"operation_delay_seconds"`
	WalletDelaySeconds      int   `json:"wallet_delay_seconds"`
	CycleCooldownMinutes    int   `json:"cycle_cooldown_minutes"`
	PhaseCooldownHours      int   `json:"phase_cooldown_hours"`
	ProgressIntervalSeconds int   `json:"progress_interval_seconds"`
	Seed                    int64 `json:"seed"`
}

// StorageConfig 统一描述交易日志与冷却记录的存储后端。
type StorageConfig struct {
	Journal  JournalStoreConfig  `json:"journal"`
	Cooldown CooldownStoreConfig `json:"cooldown"`
}

// JournalStoreConfig 支持 memory、mysql 与 postgres。
type JournalStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// CooldownStoreConfig 支持 file、mysql、postgres 与 redis。
type CooldownStoreConfig struct {
	Driver string      `json:"driver"`
	Path   string      `json:"path"`
	DSN    string      `json:"dsn"`
	Redis  RedisConfig `json:"redis"`
}

// RedisConfig 描述 Redis 连接。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// EventsConfig 选择操作结果的发布通道：none、memory、redis、rabbitmq 或 kafka。
type EventsConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
	Kafka    KafkaConfig    `json:"kafka"`
}

// RabbitMQConfig 描述 RabbitMQ 连接。
type RabbitMQConfig struct {
	URL   string `json:"url"`
	Queue string `json:"queue"`
}

// KafkaConfig 描述 Kafka 连接。
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// AlertingConfig 控制终态失败的告警分发。
type AlertingConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
	EnvFile string `json:"env_file"`
}

// Load 负责解析指定路径的 JSON 配置文件，并应用 .env 与环境变量覆盖。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	baseDir := filepath.Dir(path)
	if err := loadEnvFile(resolve(baseDir, cfg.Runtime.EnvFile, ".env")); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults(baseDir)

	return &cfg, nil
}

// Default 返回仅包含默认值的配置，供测试与单次命令使用。
func Default(baseDir string) *Config {
	var cfg Config
	cfg.applyDefaults(baseDir)
	return &cfg
}

// loadEnvFile 加载 .env 文件；文件不存在时忽略。
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("加载 env 文件失败: %w", err)
	}
	return nil
}

// applyEnv 使用环境变量覆盖端点与密钥类配置。
func (c *Config) applyEnv() {
	setString(&c.Web3.RPCURL, "AUTOLP_RPC_URL")
	setString(&c.Web3.Router, "AUTOLP_ROUTER")
	setString(&c.Web3.WETH, "AUTOLP_WETH")
	setString(&c.Web3.ChainConfig, "AUTOLP_CHAIN_CONFIG")
	if v := strings.TrimSpace(os.Getenv("AUTOLP_CHAIN_ID")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Web3.ChainID = id
		}
	}
	setString(&c.Source.KeysFile, "AUTOLP_KEYS_FILE")
	setString(&c.Source.TokensFile, "AUTOLP_TOKENS_FILE")
	setString(&c.Storage.Journal.DSN, "AUTOLP_JOURNAL_DSN")
	setString(&c.Storage.Cooldown.DSN, "AUTOLP_COOLDOWN_DSN")
	setString(&c.Storage.Cooldown.Redis.Address, "AUTOLP_REDIS_ADDR")
	setString(&c.Storage.Cooldown.Redis.Password, "AUTOLP_REDIS_PASSWORD")
	setString(&c.Events.RabbitMQ.URL, "AUTOLP_RABBITMQ_URL")
	setString(&c.Alerting.WebhookURL, "AUTOLP_ALERT_WEBHOOK")
	setString(&c.Logging.Level, "AUTOLP_LOG_LEVEL")
	if v := strings.TrimSpace(os.Getenv("AUTOLP_KAFKA_BROKERS")); v != "" {
		c.Events.Kafka.Brokers = strings.Split(v, ",")
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Web3.ChainConfig != "" {
		c.Web3.ChainConfig = resolve(baseDir, c.Web3.ChainConfig, "")
	}

	c.Source.KeysFile = resolve(baseDir, c.Source.KeysFile, "pk.txt")
	c.Source.TokensFile = resolve(baseDir, c.Source.TokensFile, "tokens.txt")

	g := &c.Gas
	defaultString(&g.PriceGwei, "0.01")
	defaultString(&g.SwapPriceGwei, g.PriceGwei)
	defaultUint(&g.Limit, 400000)
	defaultUint(&g.WithdrawLimit, 600000)
	defaultUint(&g.ApproveLimit, 200000)
	defaultUint(&g.LPApproveLimit, 300000)
	defaultUint(&g.SwapLimit, 300000)
	defaultUint(&g.UnwrapLimit, 250000)
	defaultUint(&g.FallbackBump, 100000)

	s := &c.Submission
	defaultInt(&s.MaxRetries, 3)
	defaultInt(&s.RetryDelaySeconds, 3)
	if s.DeadlineSeconds <= 0 {
		s.DeadlineSeconds = 600
	}
	defaultInt(&s.ReceiptTimeoutSeconds, 180)
	defaultInt(&s.ReceiptPollMillis, 1000)
	if s.Preflight == nil {
		enabled := true
		s.Preflight = &enabled
	}

	l := &c.Liquidity
	defaultString(&l.FixedETH, "0.000001")
	defaultInt(&l.Slippage, 10)
	defaultInt(&l.TokensPerWallet, 5)
	defaultInt(&l.WithdrawPercent, 80)
	defaultString(&l.QuoteFallback, "1000")

	sw := &c.Swap
	defaultInt(&sw.Slippage, 5)
	defaultInt(&sw.FractionPercent, 50)
	defaultInt(&sw.CooldownHours, 48)
	defaultString(&sw.CooldownKey, "swap-eth")
	defaultInt(&sw.DelaySeconds, 5)

	t := &c.Traffic
	defaultString(&t.AnchorSymbol, "CUSD")
	defaultInt(&t.AnchorMinSwaps, 32)
	defaultInt(&t.AnchorMaxSwaps, 55)
	defaultInt64(&t.AnchorMinAmount, 100)
	defaultInt64(&t.AnchorMaxAmount, 495)
	defaultInt(&t.RandomSwaps, 10)
	defaultString(&t.RandomMinAmount, "0.01")
	defaultString(&t.RandomMaxAmount, "0.5")
	defaultInt(&t.TargetMinSwaps, 10)
	defaultInt(&t.TargetMaxSwaps, 20)
	defaultInt64(&t.TargetMinAmount, 1000)
	defaultInt64(&t.TargetMaxAmount, 5000)
	defaultInt(&t.Slippage, 5)
	defaultInt(&t.RoundCooldownHours, 10)

	sc := &c.Schedule
	defaultInt(&sc.AddCycles, 1)
	defaultInt(&sc.WithdrawCycles, 1)
	defaultInt(&sc.OperationDelaySeconds, 3)
	defaultInt(&sc.WalletDelaySeconds, 5)
	defaultInt(&sc.CycleCooldownMinutes, 10)
	defaultInt(&sc.PhaseCooldownHours, 6)
	defaultInt(&sc.ProgressIntervalSeconds, 60)

	if c.Storage.Journal.Driver == "" {
		c.Storage.Journal.Driver = "memory"
	}
	if c.Storage.Cooldown.Driver == "" {
		c.Storage.Cooldown.Driver = "file"
	}
	c.Storage.Cooldown.Path = resolve(baseDir, c.Storage.Cooldown.Path, "cooldown.json")
	defaultString(&c.Storage.Cooldown.Redis.Prefix, "autolp:cooldown:")

	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	defaultString(&c.Events.Redis.Prefix, "autolp:operations")
	defaultString(&c.Events.RabbitMQ.Queue, "autolp.operations")
	defaultString(&c.Events.Kafka.Topic, "autolp.operations")

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}

// resolve 将相对路径基于配置文件目录展开。
func resolve(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if value == "" || filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}

func defaultString(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = v
	}
}

func defaultInt(dst *int, v int) {
	if *dst <= 0 {
		*dst = v
	}
}

func defaultInt64(dst *int64, v int64) {
	if *dst <= 0 {
		*dst = v
	}
}

func defaultUint(dst *uint64, v uint64) {
	if *dst == 0 {
		*dst = v
	}
}
