package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/broadcast"
	"github.com/Tyrowin/roomchat/internal/cache"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/Tyrowin/roomchat/internal/store/gormstore"
	"github.com/Tyrowin/roomchat/internal/store/pgstore"
)

const cachePrefix = "roomchat:"

func serveCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP and WebSocket server",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return serve(ctx, f.Config)
		},
	}
}

func migrateCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema",
		Action: func(ctx context.Context, _ *cli.Command) error {
			st, err := openStore(ctx, f.Config.DatabaseURL)
			if err != nil {
				return err
			}
			defer st.Close()

			log.Info().Msg("schema is up to date")
			return nil
		},
	}
}

func roomsCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "rooms",
		Usage: "Manage chat rooms",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List all rooms",
				Action: func(ctx context.Context, c *cli.Command) error {
					st, err := openStore(ctx, f.Config.DatabaseURL)
					if err != nil {
						return err
					}
					defer st.Close()

					list, err := st.ListRooms(ctx)
					if err != nil {
						return fmt.Errorf("list rooms: %w", err)
					}

					w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
					_, _ = fmt.Fprintln(w, "ID\tNAME\tCREATED")
					for _, r := range list {
						_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, r.Name, r.CreatedAt.Format(time.RFC3339))
					}
					return w.Flush()
				},
			},
			{
				Name:  "create",
				Usage: "Create a room",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "room name", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					name := strings.TrimSpace(c.String("name"))
					if name == "" {
						return errors.New("room name must not be empty")
					}

					st, err := openStore(ctx, f.Config.DatabaseURL)
					if err != nil {
						return err
					}
					defer st.Close()

					room, err := st.CreateRoom(ctx, name)
					if err != nil {
						return fmt.Errorf("create room: %w", err)
					}
					_, _ = fmt.Fprintf(c.Root().Writer, "created room %d (%s)\n", room.ID, room.Name)
					return nil
				},
			},
		},
	}
}

// openStore picks PostgreSQL for postgres:// URLs and SQLite otherwise, then
// migrates the schema.
func openStore(ctx context.Context, url string) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		st, err = pgstore.Open(ctx, url)
	} else {
		st, err = gormstore.Open(url)
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func serve(ctx context.Context, cfg server.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Config:   cfg,
		Database: st,
		Logger:   log.With().Str("component", "server").Logger(),
	}

	// A nil *cache.Redis must not end up in an interface.
	var roomCache rooms.Cache
	var redis *cache.Redis
	if cfg.RedisURL != "" {
		redis, err = cache.Open(ctx, cfg.RedisURL, cachePrefix, cfg.CacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("cache unavailable, serving rooms from the database")
		} else {
			roomCache = redis
			deps.Cache = redis
		}
	}

	registry := broadcast.NewRegistry(
		broadcast.WithCapacity(cfg.RoomBufferSize),
		broadcast.WithLogger(log.With().Str("component", "broadcast").Logger()),
	)
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go registry.RunReaper(reaperCtx, cfg.RoomIdleTimeout/2, cfg.RoomIdleTimeout)

	tokenCfg := auth.DefaultTokenConfig()
	tokenCfg.Secret = cfg.JWTSecret
	tokenCfg.Expiration = cfg.JWTExpiration
	tokens := auth.NewTokenManager(tokenCfg)

	deps.Gate = auth.NewGate(tokens)
	deps.Accounts = auth.NewService(st, auth.NewPasswordHasher(auth.DefaultBcryptCost), tokens)
	deps.Rooms = rooms.NewLister(st, roomCache, cfg.CacheTTL, log.With().Str("component", "rooms").Logger())
	deps.Registry = registry
	deps.Messages = chat.NewPipeline(st, registry, cfg.MaxContentLength, log.With().Str("component", "chat").Logger())
	deps.Hub = server.NewHub(log.With().Str("component", "hub").Logger())

	srv := server.New(deps)
	httpServer := server.CreateServer(cfg.Port, srv.Handler())

	// Listener first, then live sessions, then the backends they write to.
	shutdown := func(context.Context) error {
		var errs []error
		if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
			errs = append(errs, err)
		}
		registry.Close()
		stopReaper()
		if err := deps.Hub.Shutdown(cfg.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("hub: %w", err))
		}
		if redis != nil {
			if err := redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("cache: %w", err))
			}
		}
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
		return errors.Join(errs...)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.StartServer(httpServer) }()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout*2,
		map[string]gfshutdown.Operation{"roomchat": shutdown},
	)

	select {
	case code := <-wait:
		return exitStatus(code)
	case err := <-serveErr:
		if err == nil {
			// Closed by the signal handler; let it finish.
			return exitStatus(<-wait)
		}
		_ = shutdown(context.Background())
		return fmt.Errorf("serve: %w", err)
	}
}

func exitStatus(code int) error {
	if code != 0 {
		return cli.Exit("shutdown did not complete cleanly", code)
	}
	log.Info().Msg("roomchat stopped")
	return nil
}
