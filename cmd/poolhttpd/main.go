// Package main is the entry point for poolhttpd.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"poolhttpd/internal/api"
	"poolhttpd/internal/config"
	"poolhttpd/internal/events"
	"poolhttpd/internal/logger"
	"poolhttpd/internal/metrics"
	"poolhttpd/internal/server"
)

var (
	version = "dev"
)

func main() {
	// フラグ定義
	var (
		configFile  = flag.String("config", "", "設定ファイルパス (YAML/JSON)")
		envFile     = flag.String("env", ".env", "環境変数ファイルパス")
		addr        = flag.String("addr", "", "HTTP リスナーのアドレス (例: 127.0.0.1:7878)")
		threads     = flag.Int("threads", 0, "ワーカースレッド数")
		adminMode   = flag.Bool("admin", false, "管理 API を有効化")
		adminAddr   = flag.String("admin-addr", "", "管理 API のアドレス (例: 127.0.0.1:9090)")
		logLevel    = flag.String("log-level", "", "ログレベル (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "ログ形式 (text, json)")
		showVersion = flag.Bool("version", false, "バージョンを表示")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `poolhttpd - Minimal HTTP/1.1 server on a fixed worker pool

Usage:
  poolhttpd [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # デフォルト設定 (127.0.0.1:7878, 4 スレッド) で起動
  poolhttpd

  # 設定ファイルから起動
  poolhttpd --config poolhttpd.yaml

  # フラグでカスタマイズ
  poolhttpd --addr 0.0.0.0:8080 --threads 8

  # 管理 API とメトリクスを有効化
  poolhttpd --admin --admin-addr 127.0.0.1:9090
`)
	}

	flag.Parse()

	// バージョン表示
	if *showVersion {
		fmt.Printf("poolhttpd version %s\n", version)
		return
	}

	cfg, err := buildConfig(*configFile, *envFile, overrides{
		addr:      *addr,
		threads:   *threads,
		admin:     *adminMode,
		adminAddr: *adminAddr,
		logLevel:  *logLevel,
		logFormat: *logFormat,
	})
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Error("", "サーバーエラー: %v", err)
		os.Exit(1)
	}
}

// overrides はコマンドラインで指定された上書き値
type overrides struct {
	addr      string
	threads   int
	admin     bool
	adminAddr string
	logLevel  string
	logFormat string
}

// buildConfig は設定ファイル、環境変数、フラグの順で設定を構築する
func buildConfig(configFile, envFile string, o overrides) (*config.FileConfig, error) {
	cfg := config.Default()

	// 1. 設定ファイルから読み込み
	if configFile != "" {
		fileConfig, err := config.LoadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		cfg = fileConfig
	}

	// 2. 環境変数
	if err := cfg.ApplyEnv(envFile); err != nil {
		return nil, err
	}

	// 3. フラグでオーバーライド
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.threads != 0 {
		cfg.Server.Threads = o.threads
	}
	if o.admin {
		cfg.Admin.Enabled = true
	}
	if o.adminAddr != "" {
		cfg.Admin.Addr = o.adminAddr
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定検証エラー: %w", err)
	}
	return cfg, nil
}

// run はサーバーを起動し、シグナルを受けるまで待つ
func run(cfg *config.FileConfig) error {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.Default.SetLevel(level)
	if err := logger.Default.SetFormat(cfg.Log.Format); err != nil {
		return err
	}

	serverConfig, err := cfg.ToServerConfig()
	if err != nil {
		return fmt.Errorf("設定変換エラー: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector, err := metrics.NewCollector("poolhttpd", reg)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	defer bus.Close()

	srv, err := server.New(serverConfig, server.WithCollector(collector), server.WithEvents(bus))
	if err != nil {
		return fmt.Errorf("サーバー起動エラー: %w", err)
	}
	// Close はワーカーの終了を待つ
	defer srv.Close()

	// シグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx)
	})
	if cfg.Admin.Enabled {
		admin := api.NewServer(cfg.Admin.Addr, srv.Pool(), srv.Metrics(), reg, bus)
		g.Go(func() error {
			return admin.Start(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("", "サーバーを終了中...")
		return nil
	})

	return g.Wait()
}
