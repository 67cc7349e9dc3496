// drilld serves the drill engine over HTTP: level listing, run
// submission, trace retrieval, and a websocket watch stream.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeofpride/drillcore/internal/api"
	"github.com/codeofpride/drillcore/internal/config"
	"github.com/codeofpride/drillcore/internal/level"
	"github.com/codeofpride/drillcore/internal/store"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "path to YAML config (optional)")
		listenFlag = flag.String("listen", "", "listen address (overrides config)")
		levelsFlag = flag.String("levels", "", "path to level pack JSON (overrides config)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[drilld] ", log.LstdFlags|log.Lmsgprefix)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *listenFlag != "" {
		cfg.Listen = *listenFlag
	}
	if *levelsFlag != "" {
		cfg.LevelsPath = *levelsFlag
	}

	pack, err := level.LoadPack(cfg.LevelsPath)
	if err != nil {
		logger.Fatalf("levels: %v", err)
	}
	logger.Printf("loaded %d levels from %s", len(pack.Levels), cfg.LevelsPath)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatalf("store: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(logger, pack, db, cfg).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s (version %s)", cfg.Listen, api.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
