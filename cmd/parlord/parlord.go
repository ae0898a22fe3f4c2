// Program parlord runs a parlor chat server.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor/server"
)

var flags struct {
	Addr    string `flag:"addr,default=:25565,Listen address (host:port)"`
	Pass    string `flag:"passphrase,default=swordfish,Administrator passphrase"`
	Room    string `flag:"room,default=lobby,Name of the default room"`
	Verbose bool   `flag:"v,Enable debug logging"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Usage:    "[flags]",
		Help:     "Run a parlor chat server.",
		SetFlags: command.Flags(flax.MustBind, &flags),
		Run:      runServer,
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runServer(env *command.Env) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if flags.Verbose {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	ln, err := net.Listen("tcp", flags.Addr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(server.Config{
		DefaultRoom: flags.Room,
		Passphrase:  flags.Pass,
		Logger:      &log,
	})
	return srv.Run(ctx, ln)
}
