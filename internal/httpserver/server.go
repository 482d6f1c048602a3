// Package httpserver 对外的 IPC 表面：设备查询、期望态增量提交与事件流。
package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	cfgpkg "github.com/taoyao-code/mixerd/internal/config"
	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/device"
)

// DeviceHub 设备注册表中 IPC 需要的能力
type DeviceHub interface {
	Devices() []coremodel.HardwareInfo
	Get(serial coremodel.DeviceSerial) (*device.Worker, bool)
	Subscribe() (uuid.UUID, <-chan coremodel.Event)
	Unsubscribe(id uuid.UUID)
}

// Server HTTP 服务封装
type Server struct {
	srv *http.Server
	hub DeviceHub
}

// New 创建并配置 Gin + HTTP Server，注册健康检查、指标与设备路由
func New(cfg cfgpkg.HTTPConfig, hub DeviceHub, metricsPath string, metricsHandler http.Handler) *Server {
	s := &Server{hub: hub}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		c.String(http.StatusOK, "ready")
	})
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metricsHandler != nil {
		r.GET(metricsPath, gin.WrapH(metricsHandler))
	}

	api := r.Group("/api")
	{
		api.GET("/devices", s.listDevices)
		api.GET("/devices/:serial", s.getDevice)
		api.GET("/devices/:serial/profile", s.exportProfile)
		api.PATCH("/devices/:serial", s.patchDevice)
		api.GET("/events", s.streamEvents)
	}

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler 返回底层路由（测试用）
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
