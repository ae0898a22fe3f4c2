// Program parlor is an interactive command-line client for a parlor chat
// server. Input lines are sent as chat text for the current room; lines
// beginning with "/" are commands:
//
//	/join <room>          move to a room
//	/whisper <name> <ms>  send a private message
//	/friend <name>        request or accept a friendship
//	/friends              list confirmed and pending friends
//	/room                 list the current room's occupants
//	/auth <code>          authenticate as administrator
//	/announce <text>      broadcast to everyone (administrators)
//	/shutoff              stop the server (administrators)
//	/quit                 disconnect and exit
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/client"
)

var flags struct {
	Addr string `flag:"addr,default=127.0.0.1:25565,Server address (host:port)"`
	Name string `flag:"name,Display name (required)"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Usage:    "-name <name> [flags]",
		Help:     "Connect to a parlor chat server.",
		SetFlags: command.Flags(flax.MustBind, &flags),
		Run:      runClient,
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runClient(env *command.Env) error {
	if flags.Name == "" {
		return env.Usagef("You must provide a -name")
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	c, err := client.Dial(flags.Addr, client.Config{
		Name:    flags.Name,
		Logger:  &log,
		OnFrame: printFrame,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go readInput(cancel, c)

	fmt.Printf("connected to %s as %s\n", flags.Addr, flags.Name)
	return c.Run(ctx)
}

// printFrame renders one inbound frame on standard output.
func printFrame(f *parlor.Frame) {
	switch f.Kind {
	case parlor.KindMessage:
		fmt.Println(string(f.Payload))
	default:
		fmt.Printf("(%v) %s\n", f.Kind, f.Payload)
	}
}

// readInput forwards console lines to the client until input ends or a /quit
// command arrives, then cancels the session.
func readInput(cancel context.CancelFunc, c *client.Client) {
	defer cancel()
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if err := dispatch(c, line); err != nil {
			if err == errQuit {
				c.Disconnect()
				return
			}
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
	}
}

var errQuit = fmt.Errorf("quit requested")

// dispatch maps one console line to a client send.
func dispatch(c *client.Client, line string) error {
	if !strings.HasPrefix(line, "/") {
		return c.Say(line)
	}
	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "join":
		return c.Join(rest)
	case "whisper":
		target, text, _ := strings.Cut(rest, " ")
		return c.Whisper(target, text)
	case "friend":
		return c.RequestFriend(rest)
	case "friends":
		return c.Friends()
	case "room":
		return c.RoomList()
	case "auth":
		return c.Authenticate(rest)
	case "announce":
		return c.Announce(rest)
	case "shutoff":
		return c.Shutoff()
	case "quit":
		return errQuit
	default:
		fmt.Fprintf(os.Stderr, "unknown command /%s\n", cmd)
		return nil
	}
}
