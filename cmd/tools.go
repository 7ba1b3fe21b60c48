package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/anicoll/ics2000-integration/internal/pkg/eventlog"
	"github.com/anicoll/ics2000-integration/pkg/hasher"
	"github.com/urfave/cli/v2"
)

const tokenLength = 32

// TokenCommand prints a fresh API token and the bcrypt hash to configure as HTTP_TOKEN_HASH.
func TokenCommand(c *cli.Context) error {
	token, err := hasher.GenerateToken(tokenLength)
	if err != nil {
		return err
	}
	hash, err := hasher.HashToken(token)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "token: %s\nHTTP_TOKEN_HASH=%s\n", token, hash)
	return err
}

// EventsCommand dumps the event journal as JSON lines.
func EventsCommand(c *cli.Context) error {
	path := c.String("event-log")
	if path == "" {
		return errors.New("an event log path is required")
	}
	filter := eventlog.Filter{
		Kind:     eventlog.Kind(c.String("kind")),
		DeviceID: c.Int64("device"),
	}
	if since := c.Duration("since"); since > 0 {
		start := time.Now().Add(-since)
		filter.TimeStart = &start
	}
	return dumpEvents(c.App.Writer, path, filter)
}

func dumpEvents(w io.Writer, path string, filter eventlog.Filter) error {
	r, err := eventlog.NewReader(path, filter)
	if err != nil {
		return err
	}
	defer r.Close()

	enc := json.NewEncoder(w)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
}
