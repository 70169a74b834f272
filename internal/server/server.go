// Package server holds the application container: config, logging and
// the connections every installer and handler shares.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/deppfellow/graphile-starter/internal/config"
	"github.com/deppfellow/graphile-starter/internal/database"
	"github.com/deppfellow/graphile-starter/internal/graphile"
	"github.com/deppfellow/graphile-starter/internal/lib/job"
	loggerPkg "github.com/deppfellow/graphile-starter/internal/logger"
	"github.com/deppfellow/graphile-starter/internal/session"
)

// Server is filled in by the installers in order: pools first, then
// sessions, auth, logging, static files and finally GraphQL.
type Server struct {
	Config        *config.Config
	Logger        *zerolog.Logger
	LoggerService *loggerPkg.LoggerService

	DB    *database.Database
	Redis *redis.Client
	Job   *job.JobService

	Sessions *session.Manager
	GraphQL  *graphile.Engine

	// WebsocketMiddlewares is the chain a websocket transport would run
	// through. Installers append to it; nothing upgrades connections yet.
	WebsocketMiddlewares []echo.MiddlewareFunc

	httpServer *http.Server
	listener   net.Listener

	// background is cancelled on shutdown, it scopes schema watching.
	background context.Context
	stop       context.CancelFunc
}

// New returns an empty container. Connections are opened by the installers.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) *Server {
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		background:    ctx,
		stop:          stop,
	}
}

// Background is a context that lives until Shutdown.
func (s *Server) Background() context.Context {
	return s.background
}

// ConnectDatabase opens and pings the owner pool.
func (s *Server) ConnectDatabase() error {
	db, err := database.New(s.Config, s.Logger, s.LoggerService)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.DB = db
	return nil
}

// ConnectRedis creates the redis client. A failed ping is logged and not
// fatal: sessions fall back to anonymous until redis is reachable.
func (s *Server) ConnectRedis() {
	client := redis.NewClient(&redis.Options{
		Addr: s.Config.Redis.Address,
	})

	if s.LoggerService != nil && s.LoggerService.GetApplication() != nil {
		client.AddHook(nrredis.NewHook(client.Options()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		s.Logger.Error().Err(err).Msg("failed to connect to redis, continuing without it")
	}

	s.Redis = client
}

// StartJobs starts the background worker. s.Job stays nil when it can't.
func (s *Server) StartJobs() error {
	jobs := job.NewJobService(s.Logger, s.Config)
	if err := jobs.Start(); err != nil {
		_ = jobs.Client.Close()
		return fmt.Errorf("failed to start job server: %w", err)
	}
	s.Job = jobs
	return nil
}

func (s *Server) SetupHTTPServer(handler http.Handler) {
	s.httpServer = &http.Server{
		Addr:         ":" + s.Config.Server.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(s.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.Config.Server.IdleTimeout) * time.Second,
	}
}

// Listen binds the port so the banner is only printed once the server
// can actually accept connections.
func (s *Server) Listen() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Port is the port actually bound, which differs from the configured one
// when that is 0. Before Listen it is the configured port.
func (s *Server) Port() string {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return strconv.Itoa(addr.Port)
		}
	}
	return s.Config.Server.Port
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.Logger.Info().
		Str("port", s.Port()).
		Str("env", s.Config.Primary.Env).
		Msg("starting server")

	return s.httpServer.Serve(s.listener)
}

// Shutdown stops, in order, the http server, jobs, redis, the database
// pool and New Relic. Every step runs and the errors are joined.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()

	var errs []error

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown HTTP server: %w", err))
		}
	}

	// Serve closes the listener on shutdown, one that was never served
	// is still open.
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close listener: %w", err))
		}
	}

	if s.Job != nil {
		s.Job.Stop()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}

	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database connection: %w", err))
		}
	}

	if s.LoggerService != nil {
		s.LoggerService.Shutdown()
	}

	return errors.Join(errs...)
}
