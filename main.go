package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sharedtrips/internal/chat"
	intconfig "sharedtrips/internal/config"
	"sharedtrips/internal/db"
	router "sharedtrips/internal/http"
	h "sharedtrips/internal/http/handlers"
	"sharedtrips/internal/http/ws"
	"sharedtrips/internal/repositories"
	"sharedtrips/internal/repositories/memory"
	"sharedtrips/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// stores bundles the three store contracts behind one backend.
type stores struct {
	reservations repositories.ReservationStore
	chatLog      repositories.ChatLog
	cities       repositories.CityDirectory
	close        func()
}

func setupLogger(env intconfig.Env) {
	zerolog.TimeFieldFormat = time.RFC3339
	if strings.EqualFold(env.LogFormat, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	level, err := zerolog.ParseLevel(strings.ToLower(env.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func openStores(ctx context.Context, env intconfig.Env) (stores, error) {
	if env.DBDriver == "memory" {
		log.Warn().Str("module", "main").Msg("using in-memory store, data is lost on restart")
		m := memory.New()
		return stores{reservations: m, chatLog: m, cities: m, close: func() {}}, nil
	}

	conn, err := intconfig.ConnectDB(ctx, env)
	if err != nil {
		return stores{}, err
	}
	if err := prepareDatabase(ctx, conn); err != nil {
		_ = conn.Close()
		return stores{}, err
	}
	s := repositories.NewStore(conn)
	return stores{reservations: s, chatLog: s, cities: s, close: func() { _ = conn.Close() }}, nil
}

func prepareDatabase(ctx context.Context, conn *sql.DB) error {
	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}
	n, err := repositories.CityRepository{DB: conn}.Seed(ctx, repositories.DefaultCities)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Str("module", "main").Int("cities", n).Msg("seeded city directory")
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env, err := intconfig.LoadEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(env)
	if env.ConfigFile != "" {
		log.Info().Str("module", "main").Str("file", env.ConfigFile).Msg("loaded config file")
	}
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	st, err := openStores(ctx, env)
	if err != nil {
		log.Fatal().Err(err).Str("driver", env.DBDriver).Msg("failed to open store")
	}
	defer st.close()

	reservations := services.NewReservationService(st.reservations)
	hub := chat.NewHub(st.chatLog, reservations, chat.Options{
		QueueSize:  env.ChatQueueSize,
		RateLimit:  env.ChatRateLimit,
		RateWindow: env.ChatRateWindow,
	})
	sockets := ws.NewController(ctx, hub, ws.Options{
		ReadLimit:      env.WSReadLimit,
		PongWait:       env.WSPongWait,
		WriteWait:      env.WSWriteWait,
		AllowedOrigins: env.AllowedOrigins(),
	})
	handlers := &h.Handlers{Reservations: reservations, Chat: hub, Cities: st.cities}

	r := router.NewRouter(env, handlers, sockets)

	srv := &http.Server{
		Addr:              env.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("module", "main").Str("addr", srv.Addr).Str("store", env.DBDriver).Msg("shared trips API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Str("module", "main").Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	hub.Close()
	log.Info().Str("module", "main").Msg("server exited gracefully")
}
