// Package admin exposes the node's operator-facing HTTP surface (spec
// §6): /metrics and /healthz. Built on fasthttp, matching the teacher
// pack's choice of a zero-allocation HTTP server for hot paths, with the
// Prometheus handler bridged in via the standard net/http adaptor.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package admin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/distfs/distfs/internal/nlog"
)

// HealthFunc reports node liveness for /healthz; a non-nil error renders
// as a 503.
type HealthFunc func() error

type Server struct {
	addr       string
	srv        *fasthttp.Server
	metricsH   fasthttp.RequestHandler
	healthFunc HealthFunc
}

func New(addr string, registry *prometheus.Registry, health HealthFunc) *Server {
	s := &Server{addr: addr, healthFunc: health}
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	s.metricsH = fasthttpadaptor.NewFastHTTPHandler(metricsHandler)

	s.srv = &fasthttp.Server{
		Handler: s.route,
		Name:    "distfs-admin",
	}
	return s
}

func (s *Server) route(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/metrics":
		s.metricsH(ctx)
	case "/healthz":
		s.serveHealth(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) serveHealth(ctx *fasthttp.RequestCtx) {
	if s.healthFunc == nil {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
		return
	}
	if err := s.healthFunc(); err != nil {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetBodyString(err.Error())
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("ok")
}

// ListenAndServe blocks serving the admin surface until Shutdown is called.
func (s *Server) ListenAndServe() error {
	nlog.Infof("admin: listening on %s", s.addr)
	return s.srv.ListenAndServe(s.addr)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}
