package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfgpkg "github.com/taoyao-code/mixerd/internal/config"
	"github.com/taoyao-code/mixerd/internal/device"
	"github.com/taoyao-code/mixerd/internal/httpserver"
	"github.com/taoyao-code/mixerd/internal/logging"
	"github.com/taoyao-code/mixerd/internal/metrics"
	"github.com/taoyao-code/mixerd/internal/usb"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "config file path (defaults to MIXERD_CONFIG or configs/example.yaml)")
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

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	var metricsHandler http.Handler
	if cfg.Metrics.Enable {
		metricsHandler = metrics.Handler(reg)
	}

	// 4) 设备注册表：sysfs 枚举 + usbfs 传输
	registry := device.NewRegistry(usb.NewSysfsEnumerator(), device.RegistryOptions{
		ScanInterval: cfg.USB.ScanInterval,
		Worker: device.Options{
			HoldThreshold: cfg.Device.HoldThreshold,
			PollInterval:  cfg.Device.EventPollInterval,
		},
		Transport: usb.Options{
			Timeout:      cfg.USB.CommandTimeout,
			PollInterval: cfg.USB.PollInterval,
			MaxRetries:   cfg.USB.MaxRetries,
		},
	}, log, appm)

	ctx, cancel := context.WithCancel(context.Background())
	regDone := make(chan struct{})
	go func() {
		defer close(regDone)
		if err := registry.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("device registry stopped", zap.Error(err))
		}
	}()

	// 5) HTTP IPC 服务
	httpSrv := httpserver.New(cfg.HTTP, registry, cfg.Metrics.Path, metricsHandler)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
		}
	}()

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
	select {
	case <-regDone:
	case <-shutdownCtx.Done():
	}
}
