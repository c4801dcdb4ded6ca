// Package httpx runs an http.Handler on a selectable engine: the standard
// net/http server or fasthttp behind its net/http adaptor.
package httpx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"anonboard/pkg/logger"
)

const (
	EngineNetHTTP  = "nethttp"
	EngineFastHTTP = "fasthttp"
)

// Server abstracts the two engines behind one start/stop pair.
type Server struct {
	engine string
	addr   string

	std  *http.Server
	fast *fasthttp.Server
}

// New builds a server for the given engine; empty or unknown engine values
// fall back to net/http.
func New(engine, addr string, h http.Handler) *Server {
	s := &Server{engine: engine, addr: addr}
	switch engine {
	case EngineFastHTTP:
		s.fast = &fasthttp.Server{
			Handler:      fasthttpadaptor.NewFastHTTPHandler(h),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
	default:
		s.engine = EngineNetHTTP
		s.std = &http.Server{
			Addr:         addr,
			Handler:      h,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
	}
	return s
}

// ListenAndServe blocks until the server stops. A clean shutdown returns
// nil.
func (s *Server) ListenAndServe() error {
	logger.Info("http_listening", "addr", s.addr, "engine", s.engine)
	if s.fast != nil {
		return s.fast.ListenAndServe(s.addr)
	}
	if err := s.std.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.fast != nil {
		return s.fast.ShutdownWithContext(ctx)
	}
	if s.std != nil {
		return s.std.Shutdown(ctx)
	}
	return fmt.Errorf("server not started")
}
