package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/framelink/internal/api"
	cfgpkg "github.com/taoyao-code/framelink/internal/config"
	"github.com/taoyao-code/framelink/internal/gateway"
	"github.com/taoyao-code/framelink/internal/health"
	"github.com/taoyao-code/framelink/internal/httpserver"
	"github.com/taoyao-code/framelink/internal/logging"
	"github.com/taoyao-code/framelink/internal/metrics"
	"github.com/taoyao-code/framelink/internal/registry"
	"github.com/taoyao-code/framelink/internal/sink"
	pgstore "github.com/taoyao-code/framelink/internal/storage/pg"
	redisstore "github.com/taoyao-code/framelink/internal/storage/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认读取 FRAMELINK_CONFIG 或 configs/example.yaml）")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 指标
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)

	// 4) schema 注册表
	schemas, err := registry.Load(cfg.Schemas.Builtin, cfg.Schemas.Dir)
	if err != nil {
		log.Fatal("load schemas failed", zap.Error(err))
	}
	log.Info("schemas loaded", zap.Strings("names", schemas.Names()))

	// 5) 遥测 sink
	checks := health.NewAggregator()
	sinks := []sink.Sink{sink.NewLogSink(log.Named("telemetry"))}
	var rdb *redisstore.Client
	if cfg.Redis.Enabled {
		rdb, err = redisstore.NewClient(context.Background(), cfg.Redis)
		if err != nil {
			log.Fatal("redis init failed", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		breaker := sink.NewBreaker(5, 30*time.Second)
		sinks = append(sinks, sink.Guard(sink.NewRedisSink(rdb, cfg.Redis.ChannelPrefix), breaker))
		checks.AddChecker(health.NewRedisChecker(rdb))
		checks.AddChecker(health.NewBreakerChecker("redis", breaker))
		log.Info("redis sink enabled", zap.String("addr", cfg.Redis.Addr), zap.String("prefix", cfg.Redis.ChannelPrefix))
	}
	if cfg.Webhook.Enabled {
		hook, err := sink.NewWebhookSink(&http.Client{Timeout: cfg.Webhook.Timeout}, cfg.Webhook.URL, cfg.Webhook.APIKey, cfg.Webhook.Secret, cfg.Webhook.Retries)
		if err != nil {
			log.Fatal("webhook init failed", zap.Error(err))
		}
		breaker := sink.NewBreaker(5, 30*time.Second)
		sinks = append(sinks, sink.Guard(hook, breaker))
		checks.AddChecker(health.NewBreakerChecker("webhook", breaker))
		log.Info("webhook sink enabled", zap.String("url", cfg.Webhook.URL))
	}
	if cfg.Database.Enabled {
		db := cfg.Database
		pool, err := pgstore.NewPool(context.Background(), db.DSN, db.MaxOpenConns, db.MaxIdleConns, db.ConnMaxLifetime, log.Named("pg"))
		if err != nil {
			log.Fatal("database init failed", zap.Error(err))
		}
		defer pool.Close()
		if db.AutoMigrate {
			if err := pgstore.EnsureSchema(context.Background(), pool); err != nil {
				log.Fatal("database migrate failed", zap.Error(err))
			}
		}
		breaker := sink.NewBreaker(5, 30*time.Second)
		sinks = append(sinks, sink.Guard(pgstore.NewTelemetrySink(pool), breaker))
		checks.AddChecker(health.NewDatabaseChecker(pgstore.Probe{Pool: pool}))
		checks.AddChecker(health.NewBreakerChecker("postgres", breaker))
		log.Info("postgres sink enabled")
	}
	out := sink.NewMulti(appm, sinks...)

	// 6) TCP 通道
	gw := gateway.New(cfg.TCP, schemas, out, appm, log)
	for _, ch := range cfg.Channels {
		if err := gw.AddChannel(ch); err != nil {
			log.Fatal("channel config error", zap.Error(err))
		}
	}
	if len(cfg.Channels) == 0 {
		log.Warn("no channels configured, only the console is available")
	}

	tcpCheck := health.NewGatewayChecker(gw)
	checks.AddChecker(tcpCheck)

	// 7) HTTP：健康检查、指标、控制台
	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	routes := []func(*gin.Engine){func(r *gin.Engine) { health.RegisterHTTPRoutes(r, checks) }}
	if cfg.HTTP.EnableConsole {
		console := api.NewConsoleHandler(schemas, gw, appm, log)
		routes = append(routes, api.ConsoleRoutes(console, cfg.HTTP.APIKeys, log))
	}
	metricsHandler := metrics.Handler(reg)
	if !cfg.Metrics.Enable {
		metricsHandler = nil
	}
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, checks.Ready, log, routes...)

	// 并行启动
	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	if err := gw.Start(); err != nil {
		log.Fatal("tcp channels start error", zap.Error(err))
	}
	tcpCheck.MarkStarted()
	log.Info("framelink started", zap.String("http", cfg.HTTP.Addr), zap.Int("channels", len(cfg.Channels)))

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := gw.Shutdown(ctx); err != nil {
		log.Warn("tcp shutdown", zap.Error(err))
	}
}
