package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deppfellow/graphile-starter/internal/config"
	"github.com/deppfellow/graphile-starter/internal/database"
	"github.com/deppfellow/graphile-starter/internal/logger"
	"github.com/deppfellow/graphile-starter/internal/router"
	"github.com/deppfellow/graphile-starter/internal/server"
)

const (
	fatalMessage    = "Fatal error occurred starting server!"
	shutdownTimeout = 30 * time.Second
)

func serveCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not run database migrations on startup")
	return cmd
}

// startupFailure reports a startup error once, on errOut and in the log.
type startupFailure struct {
	errOut io.Writer
	log    *zerolog.Logger
}

func (f *startupFailure) fail(err error) error {
	if f.log != nil {
		f.log.Error().Err(err).Msg(fatalMessage)
	}
	fmt.Fprintln(f.errOut, fatalMessage)
	fmt.Fprintln(f.errOut, err)
	return err
}

func printBanner(w io.Writer, cfg *config.Config, port string) {
	fmt.Fprintf(w, "%s listening on port %s\n", cfg.Primary.Name, port)
	fmt.Fprintf(w, "  Site:     http://localhost:%s\n", port)
	if cfg.GraphQL.GraphiQLEnabled() {
		fmt.Fprintf(w, "  GraphiQL: http://localhost:%s%s\n", port, cfg.GraphQL.GraphiQLPath)
	}
}

func serve(ctx context.Context, out, errOut io.Writer, skipMigrate bool) error {
	failure := &startupFailure{errOut: errOut}

	cfg, err := config.LoadConfig()
	if err != nil {
		return failure.fail(err)
	}

	loggerService := logger.NewLoggerService(cfg.Observability)
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)
	failure.log = &log

	if cfg.Primary.Env != "local" && !skipMigrate {
		if err := database.Migrate(ctx, &log, cfg); err != nil {
			loggerService.Shutdown()
			return failure.fail(err)
		}
	}

	srv := server.New(cfg, &log, loggerService)

	e, err := router.NewRouter(srv)
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return failure.fail(err)
	}

	srv.SetupHTTPServer(e)
	if err := srv.Listen(); err != nil {
		_ = srv.Shutdown(context.Background())
		return failure.fail(err)
	}
	printBanner(out, cfg, srv.Port())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = srv.Shutdown(context.Background())
			return failure.fail(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	log.Info().Msg("server exited properly")
	return nil
}
