package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/speakset/speakset/internal/api"
	"github.com/speakset/speakset/internal/auth"
	"github.com/speakset/speakset/internal/config"
	"github.com/speakset/speakset/internal/database"
	"github.com/speakset/speakset/internal/registry"
	"github.com/speakset/speakset/internal/server"
	"github.com/speakset/speakset/internal/stats"
	"github.com/speakset/speakset/internal/store"
	"github.com/speakset/speakset/internal/types"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	devMode        bool
	runMigrations  bool
	allowedOrigins stringSliceFlag
	sessionTTL     time.Duration
	typingTimeout  time.Duration
	idleTimeout    time.Duration
)

func main() {
	// Optional .env for local development; flags win over the
	// environment defaults.
	godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("SPEAKSET_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", os.Getenv("SPEAKSET_DSN"), "database connection string")
	flag.BoolVar(&devMode, "dev", false, "run with an in-memory store and seeded demo data")
	flag.BoolVar(&runMigrations, "migrate", false, "apply pending schema migrations and continue")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&sessionTTL, "session-ttl", config.DefaultSessionTTL, "session token lifetime")
	flag.DurationVar(&typingTimeout, "typing-timeout", config.DefaultTypingTimeout, "typing indicator inactivity timeout")
	flag.DurationVar(&idleTimeout, "idle-channel-timeout", config.DefaultIdleChannelTimeout, "idle time before an empty channel is unloaded")
	flag.Parse()

	logger := log.New(os.Stderr, "[speakset] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, allowedOrigins, devMode, sessionTTL, typingTimeout, idleTimeout)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	var db database.SpeaksetRepository
	if cfg.DevMode {
		logger.Println("dev mode: using in-memory repository")
		db = database.NewMemSpeaksetRepository()
	} else {
		if runMigrations {
			if err := database.Migrate(cfg.DatabaseDSN, cfg.MigrationsURL); err != nil {
				logger.Fatal("migrate: ", err)
			}
		}
		pg, err := database.NewPgSpeaksetRepository(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("db open: ", err)
		}
		db = pg
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	broadcaster := server.NewBroadcaster(logger, db, statsUpdater, cfg.TypingTimeout, cfg.IdleChannelTimeout)
	sessions := auth.NewSessionManager(logger, db, cfg.SessionTTL)
	reg, err := registry.NewRegistry(logger, db)
	if err != nil {
		logger.Fatal("registry: ", err)
	}
	msgStore := store.NewMessageStore(logger, db, broadcaster)

	if cfg.DevMode {
		if err := seedDemo(sessions, reg, msgStore); err != nil {
			logger.Fatal("seed demo data: ", err)
		}
	}

	srv := api.NewSpeaksetApp(mux, logger, db, sessions, reg, msgStore, broadcaster, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()
	sessions.Run()
	go broadcaster.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down broadcaster...")
	if err := broadcaster.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("broadcaster shutdown:", err)
	}
	sessions.Shutdown()

	logger.Println("shutdown complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// seedDemo fills the in-memory repository with the demo space and
// welcome messages so a fresh dev server has something to show.
func seedDemo(sessions *auth.SessionManager, reg *registry.Registry, msgStore *store.MessageStore) error {
	alex, err := sessions.Register("alex", "speakset-dev")
	if err != nil {
		return err
	}
	rhea, err := sessions.Register("rhea", "speakset-dev")
	if err != nil {
		return err
	}

	space, err := reg.CreateSpace(alex.Id, "Dev Lounge")
	if err != nil {
		return err
	}
	if _, err := reg.JoinBySlug(space.InviteSlug, rhea.Id); err != nil {
		return err
	}

	general := types.ChannelRef{
		SpaceId: space.Id,
		Kind:    types.ChannelKindText,
		Name:    registry.DefaultTextChannel,
	}
	if _, err := msgStore.Append(general, alex.Id, "Welcome to Speakset 👋"); err != nil {
		return err
	}
	msg, err := msgStore.Append(general, rhea.Id, "Clean. Fast. Private. nailed it. 🔥")
	if err != nil {
		return err
	}
	if _, err := msgStore.React(msg.Id, alex.Id, "🔥"); err != nil {
		return err
	}
	if _, err := msgStore.React(msg.Id, rhea.Id, "🔥"); err != nil {
		return err
	}

	return nil
}
