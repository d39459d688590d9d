package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/tuirace/internal/config"
	"github.com/verte-zerg/tuirace/internal/room"
	"github.com/verte-zerg/tuirace/internal/server"
	"github.com/verte-zerg/tuirace/internal/store"
	"github.com/verte-zerg/tuirace/internal/wordlist"
)

const (
	defaultAddr       = ":8080"
	defaultPruneAfter = 24 * time.Hour
	shutdownTimeout   = 5 * time.Second
)

var (
	serveAddr        string
	serveDB          string
	serveOrigins     []string
	servePruneAfter  time.Duration
	serveWordlistDir string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the race room server",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", defaultAddr, "listen address")
	cmd.Flags().StringVar(&serveDB, "db", config.DefaultDBPath(), "SQLite database for room state")
	cmd.Flags().StringSliceVar(&serveOrigins, "allowed-origin", []string{"*"}, "allowed websocket/CORS origins")
	cmd.Flags().DurationVar(&servePruneAfter, "prune-after", defaultPruneAfter, "drop persisted rooms idle for longer than this on startup (0 keeps all)")
	cmd.Flags().StringVar(&serveWordlistDir, "wordlist-dir", config.DefaultWordListDir(), "directory with <mode>.json or <mode>.txt word lists")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	if err := setupConsoleLogging(logLevel); err != nil {
		return err
	}
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "addr", &serveAddr, fileCfg.Server.Addr)
	applyStringConfig(cmd, "db", &serveDB, fileCfg.Server.DB)
	applyStringsConfig(cmd, "allowed-origin", &serveOrigins, fileCfg.Server.AllowedOrigins)
	applyStringConfig(cmd, "wordlist-dir", &serveWordlistDir, fileCfg.Practice.WordlistDir)
	applyEnv(cmd, "addr", &serveAddr, "TUIRACE_ADDR")
	applyEnv(cmd, "db", &serveDB, "TUIRACE_DB")

	ctx := cmd.Context()
	st, err := store.Open(serveDB)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close db")
		}
	}()

	if servePruneAfter > 0 {
		pruned, err := st.PruneBefore(ctx, time.Now().Add(-servePruneAfter))
		if err != nil {
			log.Warn().Err(err).Msg("failed to prune stale rooms")
		} else if pruned > 0 {
			log.Info().Int("rooms", pruned).Msg("pruned stale rooms")
		}
	}
	if codes, err := st.ListRooms(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to list persisted rooms")
	} else {
		log.Info().Int("rooms", len(codes)).Strs("codes", codes).Msg("persisted rooms available for recovery")
	}

	srvCfg := server.DefaultConfig()
	srvCfg.AllowedOrigins = serveOrigins
	srv := server.New(srvCfg, room.Config{
		KV:    func(code string) room.KV { return st.Room(code) },
		Words: wordlist.NewSource(serveWordlistDir),
	})
	httpSrv := &http.Server{
		Addr:              serveAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serveAddr).Str("db", serveDB).Msg("starting room server")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		srv.Close()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down room server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	srv.Close()
	return nil
}

func applyEnv(cmd *cobra.Command, name string, target *string, key string) {
	if cmd.Flags().Changed(name) {
		return
	}
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
