// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/loyalty/internal/auth"
	"github.com/hitoshi/loyalty/internal/config"
	"github.com/hitoshi/loyalty/internal/customer"
	"github.com/hitoshi/loyalty/internal/database"
	"github.com/hitoshi/loyalty/internal/handler"
	"github.com/hitoshi/loyalty/internal/logger"
	"github.com/hitoshi/loyalty/internal/metrics"
	"github.com/hitoshi/loyalty/internal/middleware"
	"github.com/hitoshi/loyalty/internal/repository"
	"github.com/hitoshi/loyalty/internal/security"
	"github.com/hitoshi/loyalty/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(cfg)
	default:
		return runServe(cfg)
	}
}

// stores はストアドライバーに応じて構築したリポジトリ一式。
// dbはPostgreSQL利用時のみ非nil。
type stores struct {
	customers repository.CustomerRepository
	sessions  repository.SessionRepository
	db        *sql.DB
}

// Close はDB接続を閉じる。メモリストアの場合は何もしない。
func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openStores は設定に従ってストアを開く。
// PostgreSQLの場合は接続確認まで行う。
func openStores(cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return &stores{
			customers: repository.NewMemoryCustomerRepo(),
			sessions:  repository.NewMemorySessionRepo(),
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return &stores{
		customers: repository.NewPostgresCustomerRepo(db, cfg.StoreTimeout),
		sessions:  repository.NewPostgresSessionRepo(db, cfg.StoreTimeout),
		db:        db,
	}, nil
}

// newMetrics はプロセス・Goランタイムのコレクターを含むレジストリとアプリケーションメトリクスを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// server はHTTPハンドラーと、停止時に解放すべきリソースをまとめたもの。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// buildServer はストアとメトリクスから全依存関係をワイヤリングし、ルーターを構築する。
func buildServer(cfg *config.Config, st *stores, reg *prometheus.Registry, collector *metrics.Collector) *server {
	// 1. リポジトリにレイテンシ計測を被せる
	customers := repository.NewInstrumentedCustomerRepo(st.customers, collector)
	sessions := repository.NewInstrumentedSessionRepo(st.sessions, collector)

	// 2. ドメインサービスの初期化
	customerService := customer.NewService(customers, security.NewNameSanitizer(), collector, customer.Config{
		VisitCooldown: cfg.VisitCooldown,
	})
	guard := auth.NewGuard(sessions, auth.GuardConfig{
		Password:      cfg.AdminPassword,
		SessionMaxAge: cfg.SessionMaxAgeDuration(),
		IdleTimeout:   cfg.SessionIdleTimeout,
	}, collector)

	// 3. レート制限（configはreq/min単位）
	rlConfig := middleware.DefaultRateLimiterConfig()
	rlConfig.GeneralRate = middleware.PerMinute(cfg.RateLimitGeneral)
	rlConfig.GeneralBurst = cfg.RateLimitGeneral
	rlConfig.LoginRate = middleware.PerMinute(cfg.RateLimitLogin)
	rlConfig.LoginBurst = cfg.RateLimitLogin
	rateLimiter := middleware.NewRateLimiter(rlConfig, collector)

	// 4. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		AllowedOrigins:    cfg.AllowedOrigins(),
		RateLimiter:       rateLimiter,
		TrustProxy:        cfg.TrustProxy,

		CustomerService: customerService,

		Guard: guard,
		AdminConfig: handler.AdminHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		MetricsHandler: metrics.Handler(reg),
	}
	// *sql.DBがnilのままインターフェースに入らないようにする
	if st.db != nil {
		deps.HealthChecker = st.db
	}

	return &server{
		handler:     handler.NewRouter(deps),
		rateLimiter: rateLimiter,
	}
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg, collector := newMetrics()
	srv := buildServer(cfg, st, reg, collector)
	defer srv.rateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Info("in-memory store needs no migrations")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCleanup は期限切れ管理者セッションの削除を1回実行して終了する。
func runCleanup(cfg *config.Config) error {
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	_, collector := newMetrics()
	sessions := repository.NewInstrumentedSessionRepo(st.sessions, collector)
	job := cleanup.NewCleanupJob(sessions, slog.Default(), cfg.SessionIdleTimeout, collector)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := job.Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
