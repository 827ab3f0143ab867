package main

import (
	"context"
	"fmt"
	"os"

	"taskManager/internal/app"
	"taskManager/internal/config"
	"taskManager/internal/logger"
	"taskManager/internal/repository/task/postgres"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ошибка:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "HTTP API менеджера задач",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "путь к YAML-конфигурации",
				Value:   config.DefaultPath,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "логи в режиме разработки",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "запустить HTTP-сервер",
				Action: runServe,
			},
			{
				Name:  "migrate",
				Usage: "миграции PostgreSQL",
				Commands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "применить все миграции",
						Action: runMigrate(postgres.Migrate),
					},
					{
						Name:   "down",
						Usage:  "откатить все миграции",
						Action: runMigrate(postgres.Rollback),
					},
				},
			},
		},
		DefaultCommand: "serve",
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	if cmd.Bool("debug") {
		cfg.Logging.Development = true
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := app.New(cfg).Init(ctx)
	if err != nil {
		return err
	}

	if code := a.Run(ctx); code != 0 {
		return cli.Exit("сервер остановлен с ошибкой", code)
	}
	return nil
}

func runMigrate(step func(connString string) error) cli.ActionFunc {
	return func(_ context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url не задан")
		}
		if err := logger.Init(cfg.Logging.Development); err != nil {
			return err
		}
		defer logger.Sync()

		return step(cfg.Database.URL)
	}
}
