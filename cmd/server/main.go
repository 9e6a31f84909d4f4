package main

import (
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/campuslive/lecturecast/internal/api"
	"github.com/campuslive/lecturecast/internal/config"
	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/lifecycle"
	"github.com/campuslive/lecturecast/internal/service"
)

func main() {
	app := &cli.App{
		Name:  "lecturecast-server",
		Usage: "Live lecture broadcast node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "",
				Usage: "Path to a yaml config file",
			},
			&cli.StringFlag{
				Name:  "env",
				Value: string(core.DevelopmentEnv),
				Usage: "Runtime environment: development or production",
			},
		},
		Action: start,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}

func start(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})

	bus := eventbus.NewBus(rdb, cfg.Signaling.ChannelOpenTimeout, 3*cfg.Signaling.PresenceInterval)
	opener := service.BusOpener{Bus: bus}

	notifier, err := lifecycle.NewPublisher(cfg.NatsAddr)
	if err != nil {
		return err
	}
	defer notifier.Close()

	sessions := core.NewSessionsRepository(db)

	manager, err := service.NewLiveSessionsManager(cfg, opener, sessions, notifier)
	if err != nil {
		return err
	}

	server := api.NewApp(api.AppOptions{
		Env:     core.Environment(c.String("env")),
		Address: cfg.ListenAddr,
		DB:      db,
		Opener:  opener,
		Service: api.ManagerService{Manager: manager},
		Auth:    api.NewTokenAuth(cfg.AuthSecret),
	})

	return server.Start()
}
