// Command wsdial is a small interactive client for exercising a WebSocket
// endpoint from the command line: it dials, prints incoming text messages
// to stdout, and sends each line of stdin as a text message.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/tzrikka/xdg"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"github.com/lattice-ws/websocket/internal/wslog"
	"github.com/lattice-ws/websocket/pkg/websocket"
)

const (
	configDirName  = "wsdial"
	configFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "wsdial",
		Usage:   "dial a WebSocket endpoint and relay text messages to/from stdio",
		Version: bi.Main.Version,
		Flags:   flags(),
		Action:  run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	path := configFile()

	return []cli.Flag{
		&cli.StringFlag{
			Name:  "url",
			Usage: "WebSocket endpoint URL (ws:// or wss://)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSDIAL_URL"),
				toml.TOML("url", path),
			),
		},
		&cli.StringSliceFlag{
			Name:  "protocol",
			Usage: "subprotocol to offer, repeatable, most preferred first",
			Sources: cli.NewValueSourceChain(
				toml.TOML("protocol", path),
			),
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := initLog(cmd.Bool("pretty-log"))
	ctx = wslog.InContext(ctx, logger)

	url := cmd.String("url")
	if url == "" {
		return fmt.Errorf("wsdial: --url is required")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := websocket.Dial(ctx, url, websocket.WithProtocols(cmd.StringSlice("protocol")...), websocket.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to dial %q: %w", url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure)

	async, err := websocket.NewAsyncConn(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to start connection pump: %w", err)
	}

	go relayStdinToConn(async)
	relayConnToStdout(async)

	return async.Wait()
}

func relayStdinToConn(async *websocket.AsyncConn) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		<-async.SendText(scanner.Bytes())
	}
}

func relayConnToStdout(async *websocket.AsyncConn) {
	for msg := range async.IncomingMessages() {
		fmt.Println(string(msg.Data))
	}
}

// configFile returns the path to the app's configuration file, creating an
// empty one if it doesn't exist yet.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		wslog.Fatal(context.Background(), "failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

func initLog(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
