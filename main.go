package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/ics2000-integration/cmd"
)

func main() {
	app := &cli.App{
		Name:   "ics2000-controller",
		Usage:  "bridge for the KlikAanKlikUit ICS-2000 gateway",
		Action: cmd.HubCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "email",
				EnvVars: []string{"ICS_EMAIL"},
			},
			&cli.StringFlag{
				Name:    "password",
				EnvVars: []string{"ICS_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "mac",
				EnvVars: []string{"ICS_MAC"},
			},
			&cli.StringFlag{
				Name:    "ip",
				EnvVars: []string{"ICS_IP"},
				Usage:   "gateway address, discovered on the local network when empty",
			},
			&cli.BoolFlag{
				Name:    "discover",
				EnvVars: []string{"ICS_DISCOVER_LOCAL"},
				Value:   true,
			},
			&cli.StringFlag{
				Name:    "id-mapping",
				EnvVars: []string{"ICS_ID_MAPPING"},
				Value:   "modulo",
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				EnvVars: []string{"ICS_POLL_INTERVAL"},
			},
			&cli.StringFlag{
				Name:    "overrides-file",
				EnvVars: []string{"OVERRIDES_FILE"},
			},
			&cli.StringFlag{
				Name:    "state-backend",
				EnvVars: []string{"STATE_BACKEND"},
				Value:   "file",
			},
			&cli.StringFlag{
				Name:    "state-path",
				EnvVars: []string{"STATE_PATH"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "migrations-folder",
				EnvVars: []string{"MIGRATIONS_FOLDER"},
			},
			&cli.StringFlag{
				Name:    "sqlite-path",
				EnvVars: []string{"SQLITE_PATH"},
			},
			&cli.StringFlag{
				Name:    "event-log",
				EnvVars: []string{"EVENT_LOG_PATH"},
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				EnvVars: []string{"MQTT_HOST"},
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
			},
			&cli.StringFlag{
				Name:    "influx-url",
				EnvVars: []string{"INFLUX_URL"},
			},
			&cli.StringFlag{
				Name:    "influx-token",
				EnvVars: []string{"INFLUX_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "http-addr",
				EnvVars: []string{"HTTP_ADDR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "token",
				Usage:  "generate an API token and the hash to configure",
				Action: cmd.TokenCommand,
			},
			{
				Name:   "events",
				Usage:  "print the event journal as JSON lines",
				Action: cmd.EventsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "event-log",
						EnvVars: []string{"EVENT_LOG_PATH"},
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "event or state",
					},
					&cli.Int64Flag{
						Name: "device",
					},
					&cli.DurationFlag{
						Name: "since",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
