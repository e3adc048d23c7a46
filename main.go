// main.go
// learnhub 服务入口：serve 启动 HTTP 服务，routes 打印路由表
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"learnhub-server/internal/app"
	"learnhub-server/internal/config"
	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "learnhub",
		Short:         "LearnHub 学习平台后端",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// .env 不存在也没关系，后面用系统环境变量
			_ = godotenv.Load()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML 配置文件路径（默认读取 CONFIG_FILE）")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	routesCmd := &cobra.Command{
		Use:   "routes",
		Short: "打印全部功能路由（不连接外部服务）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoutes(cmd.OutOrStdout(), configPath)
		},
	}

	rootCmd.AddCommand(serveCmd, routesCmd)
	// 不带子命令时等同于 serve
	rootCmd.RunE = serveCmd.RunE
	return rootCmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	for _, w := range cfg.Warnings {
		log.Warn().Msg("⚠️ " + w)
	}
	return cfg, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

func runRoutes(out io.Writer, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, app.Options{Offline: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tPREFIX\tENDPOINT")
	for _, group := range httpapi.DescribeRoutes(a.Engine.Routes(), a.Table) {
		for _, ep := range group.Endpoints {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", group.Tag, group.Prefix, ep)
		}
	}
	return tw.Flush()
}
