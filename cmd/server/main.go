package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldnotes.ai/internal/command"
	"fieldnotes.ai/internal/observation"
	persistlog "fieldnotes.ai/internal/persistence/log"
	"fieldnotes.ai/internal/transport/ws"
	"fieldnotes.ai/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "keep observations in memory only")
		noAudit    = flag.Bool("disable_audit", false, "do not write the lifecycle audit log")
	)
	flag.Parse()

	flags := log.LstdFlags | log.Lmicroseconds
	logger := log.New(os.Stdout, "[server] ", flags)

	_ = os.MkdirAll(*dataDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	zone, err := tune.Location()
	if err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, backend, err := openStore(ctx, *dataDir, *disableDB, log.New(os.Stdout, "[store] ", flags))
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()
	logger.Printf("store backend=%s", backend)

	host, err := ws.NewHost(log.New(os.Stdout, "[ws] ", flags))
	if err != nil {
		logger.Fatalf("marker host: %v", err)
	}

	renderer := observation.NewRenderer(host, observation.RendererConfig{
		IconItem:   tune.Render.IconItem,
		DateLayout: tune.Render.DateLayout,
		TimeZone:   zone,
	})
	coord := observation.New(observation.Config{
		SweepInterval:  tune.SweepInterval,
		PersistRetries: tune.Persist.Retries,
		PersistBackoff: tune.Persist.Backoff,
		PersistTimeout: tune.Persist.Timeout,
		Logger:         log.New(os.Stdout, "[obs] ", flags),
	}, st, renderer)
	defer coord.Close()

	if !*noAudit {
		archive, err := buildArchiveUploader(*dataDir, log.New(os.Stdout, "[archive] ", flags))
		if err != nil {
			logger.Fatalf("archive: %v", err)
		}
		defer archive.Close()
		auditLog := persistlog.NewAuditLogger(*dataDir, persistlog.LoggerOptions{OnClose: archive.Enqueue})
		defer auditLog.Close()
		coord.SetAuditLogger(auditLog)
	}

	host.SetCommands(command.NewDispatcher(coord, command.Config{
		DateLayout: tune.Render.DateLayout,
		TimeZone:   zone,
		Limiter:    command.NewLimiter(tune.RateLimits.ObserveEvery, tune.RateLimits.ObserveBurst),
		Logger:     logger,
	}))

	// The loop is not running yet, so restore directly.
	n, err := restore(ctx, coord, st, logger)
	if err != nil {
		logger.Fatalf("restore observations: %v", err)
	}
	logger.Printf("restored %d observation(s)", n)
	coord.Sweep()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(coord, host, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(gctx)
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		host.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("stopped: %v", err)
	}
	logger.Printf("shutdown complete")
}

// restore registers every active stored record.
func restore(ctx context.Context, coord *observation.Coordinator, st observation.Loader, logger *log.Logger) (int, error) {
	recs, err := st.LoadActive(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if _, err := coord.LoadRecord(rec); err != nil {
			logger.Printf("skip record %d: %v", rec.ID, err)
			continue
		}
		n++
	}
	return n, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
