package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/campuslive/lecturecast/internal/config"
	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/lifecycle"
)

func main() {
	app := &cli.App{
		Name:  "lecturecast-roster",
		Usage: "Roster worker, applies session lifecycle events to the attendance database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "",
				Usage: "Path to a yaml config file",
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

	daemon, err := lifecycle.New(cfg.NatsAddr, core.NewSessionsRepository(db))
	if err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		daemon.Stop()
	}()

	return daemon.Run()
}
