package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"
)

const defaultConfigPath = "config.yaml"

var configFlag = cli.StringFlag{
	Name:  "config, c",
	Usage: "path to config file (default: " + defaultConfigPath + ")",
}

func Execute(args []string) error {
	app := cli.App{
		Name:      "album-poster",
		Usage:     "posts one unpublished album item at a time to a Mastodon account",
		UsageText: "album-poster [--config FILE] <command>",
		Flags:     []cli.Flag{configFlag},
		Action:    run,
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "authorize and start the publish scheduler (default)",
				Flags:  []cli.Flag{configFlag},
				Action: run,
			},
			{
				Name:   "post-now",
				Usage:  "authorize, publish one unpublished item right away and exit",
				Flags:  []cli.Flag{configFlag},
				Action: postNow,
			},
			{
				Name:   "status",
				Usage:  "print how many items were published and the latest one",
				Flags:  []cli.Flag{configFlag},
				Action: status,
			},
			{
				Name:   "auth-url",
				Usage:  "print the album authorization URL",
				Flags:  []cli.Flag{configFlag},
				Action: authURL,
			},
		},
		HideVersion: true,
	}
	return app.Run(args)
}

func main() {
	if err := Execute(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "album-poster: %s\n", err)
		os.Exit(1)
	}
}

func configPath(c *cli.Context) string {
	if p := c.String("config"); p != "" {
		return p
	}
	if p := c.GlobalString("config"); p != "" {
		return p
	}
	return defaultConfigPath
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
