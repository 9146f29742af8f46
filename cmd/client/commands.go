package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/astromechza/automerge-relay/pkg/syncer"
	"github.com/astromechza/automerge-relay/pkg/todo"
)

var errQuit = errors.New("quit")

const usage = `commands:
  add <text>   append an item
  toggle <n>   cross out or restore item n
  offline      stop syncing, keep editing locally
  online       resume syncing
  list         print the list
  quit         exit`

// command runs on the client's loop and reports whether the list should be printed afterwards. Changes to the
// document are printed by the watcher instead.
type command func(c *syncer.Client) (bool, error)

func parseCommand(line string) (command, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	switch verb {
	case "add":
		if rest == "" {
			return nil, errors.New("add needs some text")
		}
		return mutate(todo.AddItem(rest)), nil
	case "toggle":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("toggle needs an item number, got %q", rest)
		}
		return mutate(todo.ToggleItem(n - 1)), nil
	case "offline", "online":
		online := verb == "online"
		return func(c *syncer.Client) (bool, error) {
			c.SetOnline(online)
			return true, nil
		}, nil
	case "list", "ls":
		return func(*syncer.Client) (bool, error) { return true, nil }, nil
	case "quit", "exit":
		return func(*syncer.Client) (bool, error) { return false, errQuit }, nil
	case "help", "":
		return nil, errors.New(usage)
	default:
		return nil, fmt.Errorf("unknown command %q\n%s", verb, usage)
	}
}

func mutate(m todo.Mutation) command {
	return func(c *syncer.Client) (bool, error) {
		_, err := c.Apply(m)
		return false, err
	}
}

func render(w io.Writer, snap *todo.Snapshot, online bool) {
	state := "ONLINE"
	if !online {
		state = "OFFLINE"
	}
	_, _ = fmt.Fprintf(w, "-- %s (%s)\n", state, snap.Summary())
	for i, item := range snap.Items {
		mark := " "
		if item.Done {
			mark = "x"
		}
		_, _ = fmt.Fprintf(w, "%3d [%s] %s\n", i+1, mark, item.Text)
	}
}
