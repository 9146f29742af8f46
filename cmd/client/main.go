package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/astromechza/automerge-relay/pkg/config"
	"github.com/astromechza/automerge-relay/pkg/syncer"
	"github.com/astromechza/automerge-relay/pkg/todo"
	"github.com/astromechza/automerge-relay/pkg/transport"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	configVar := flag.String("config", "", "path to a toml config file")
	relayVar := flag.String("relay", "", "the relay websocket url, overrides the config file")
	flag.Parse()

	cfg, err := config.LoadClient(*configVar)
	if err != nil {
		return err
	}
	if *relayVar != "" {
		cfg.RelayURL = *relayVar
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	store, err := todo.New(cfg.ActorID)
	if err != nil {
		return err
	}
	slog.Info("established base doc", "actor", store.ActorID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := new(sync.WaitGroup)

	loop := syncer.NewLoop(64)
	dialer := transport.NewDialer(cfg.RelayURL, loop, cfg.ReconnectInterval, cfg.SendQueue)
	client := syncer.NewClient(store, dialer, slog.Default(), nil)

	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		dialer.Run(ctx, client)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		watchChanges(ctx, store, client)
	}()

	// stdin is not closed on shutdown, so this goroutine is not waited for
	go func() {
		defer cancel()
		if err := readCommands(ctx, loop, client, store); err != nil {
			slog.Error("failed to read commands", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		slog.Info("Signal caught", "sig", sig)
	case <-ctx.Done():
	}
	cancel()

	wg.Wait()
	slog.Info("stopped", "items", store.Current().Summary())
	return nil
}

func readCommands(ctx context.Context, loop *syncer.Loop, client *syncer.Client, store *todo.Store) error {
	fmt.Println(usage)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd, err := parseCommand(scanner.Text())
		if err != nil {
			fmt.Println(err)
			continue
		}
		var show bool
		var cmdErr error
		if err := loop.Do(ctx, func() { show, cmdErr = cmd(client) }); err != nil {
			return err
		}
		if errors.Is(cmdErr, errQuit) {
			return nil
		} else if cmdErr != nil {
			fmt.Println(cmdErr)
			continue
		}
		if show {
			render(os.Stdout, store.Current(), client.Online())
		}
	}
	return scanner.Err()
}

// watchChanges prints the list whenever the document's heads move, by a local edit or a merge.
func watchChanges(ctx context.Context, store *todo.Store, client *syncer.Client) {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	last := store.Current().Heads
	for {
		select {
		case <-t.C:
			snap := store.Current()
			if slices.Equal(snap.Heads, last) {
				continue
			}
			last = snap.Heads
			render(os.Stdout, snap, client.Online())
		case <-ctx.Done():
			return
		}
	}
}
