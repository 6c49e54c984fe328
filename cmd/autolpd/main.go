package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"AutoLP-Chain/internal/config"
	"AutoLP-Chain/internal/cooldown"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/scheduler"
	"AutoLP-Chain/pkg/logger"

	"github.com/urfave/cli/v2"
)

// main 是 autolpd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.L().Info("收到退出信号，已停止")
			return
		}
		if apperrors.HasCode(err, cooldown.CodeCooldownActive) {
			logger.L().Warn("冷却期内，本次不执行", slog.Any("error", err))
			return
		}
		logger.L().Error("autolpd 运行失败", slog.Any("error", err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "autolpd",
		Usage: "AMM 流动性与兑换自动化",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "JSON 配置文件路径",
				Value:   filepath.Join("configs", "autolp.json"),
				EnvVars: []string{"AUTOLP_CONFIG"},
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "随机数种子，0 表示使用当前时间",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "为每个钱包随机选取代币添加流动性",
				Flags: []cli.Flag{cyclesFlag("schedule.add_cycles")},
				Action: func(c *cli.Context) error {
					return withRuntime(c, func(ctx context.Context, rt *runtime) error {
						s, wallets, tokens, err := rt.scheduler(c)
						if err != nil {
							return err
						}
						_, err = s.RunAdd(ctx, wallets, tokens, cycles(c, rt.cfg.Schedule.AddCycles))
						return err
					})
				},
			},
			{
				Name:  "withdraw",
				Usage: "撤出每个钱包在全部代币上的流动性",
				Flags: []cli.Flag{cyclesFlag("schedule.withdraw_cycles")},
				Action: func(c *cli.Context) error {
					return withRuntime(c, func(ctx context.Context, rt *runtime) error {
						s, wallets, tokens, err := rt.scheduler(c)
						if err != nil {
							return err
						}
						_, err = s.RunWithdraw(ctx, wallets, tokens, cycles(c, rt.cfg.Schedule.WithdrawCycles))
						return err
					})
				},
			},
			{
				Name:  "full",
				Usage: "循环执行添加、冷却、撤出、冷却",
				Flags: []cli.Flag{roundsFlag()},
				Action: func(c *cli.Context) error {
					return withRuntime(c, func(ctx context.Context, rt *runtime) error {
						s, wallets, tokens, err := rt.scheduler(c)
						if err != nil {
							return err
						}
						_, err = s.RunFull(ctx, wallets, tokens,
							rt.cfg.Schedule.AddCycles, rt.cfg.Schedule.WithdrawCycles, c.Int("rounds"))
						return err
					})
				},
			},
			swapCommand("swap", "将每个代币的部分余额兑换为 WETH", scheduler.SwapOnly),
			swapCommand("unwrap", "将 WETH 解包为原生币", scheduler.UnwrapOnly),
			swapCommand("swap-unwrap", "兑换为 WETH 后解包", scheduler.SwapThenUnwrap),
			{
				Name:  "traffic",
				Usage: "按锚定代币模拟自然交易流量",
				Flags: []cli.Flag{roundsFlag()},
				Action: func(c *cli.Context) error {
					return withRuntime(c, func(ctx context.Context, rt *runtime) error {
						wallets, tokens, err := rt.loadSources()
						if err != nil {
							return err
						}
						trafficCfg, err := trafficConfig(rt.cfg, tokens)
						if err != nil {
							return err
						}
						runner, err := scheduler.NewTrafficRunner(rt.orch, rt.contracts, rt.orch.Tokens(), trafficCfg,
							nil, scheduler.NewRand(c.Int64("seed")))
						if err != nil {
							return err
						}
						_, err = runner.Run(ctx, wallets, tokens, c.Int("rounds"))
						return err
					})
				},
			},
			{
				Name:  "serve",
				Usage: "仅启动只读状态 API",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					rt, err := newStatusRuntime(c.Context, cfg)
					if err != nil {
						return err
					}
					defer rt.close()
					rt.cfg.Server.Enabled = true
					rt.serveStatus(c.Context)
					<-c.Context.Done()
					return c.Context.Err()
				},
			},
		},
	}
}

func cyclesFlag(key string) cli.Flag {
	return &cli.IntFlag{
		Name:  "cycles",
		Usage: fmt.Sprintf("循环次数，缺省取配置 %s", key),
	}
}

func roundsFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "rounds",
		Usage: "执行轮数，0 表示持续运行直到退出",
	}
}

func cycles(c *cli.Context, configured int) int {
	if n := c.Int("cycles"); n > 0 {
		return n
	}
	return configured
}

func swapCommand(name, usage string, mode scheduler.SwapMode) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			return withRuntime(c, func(ctx context.Context, rt *runtime) error {
				wallets, tokens, err := rt.loadSources()
				if err != nil {
					return err
				}
				runner := scheduler.NewSwapRunner(rt.orch, rt.swapGate, rt.swapDelay(), nil)
				report, err := runner.Run(ctx, mode, wallets, tokens)
				if err != nil {
					return err
				}
				rt.log.Info("兑换任务结束",
					slog.String("mode", string(mode)),
					slog.Int("succeeded", report.Succeeded),
					slog.Int("skipped", report.Skipped),
					slog.Int("failed", report.Failed),
					slog.Bool("cooldown_started", report.Performed),
				)
				return nil
			})
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, nil
}

// withRuntime 加载配置、装配运行时并在需要时启动状态 API，然后执行 fn。
func withRuntime(c *cli.Context, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.serveStatus(ctx)
	rt.log.Info("命令开始", slog.String("command", c.Command.Name))
	return fn(ctx, rt)
}
