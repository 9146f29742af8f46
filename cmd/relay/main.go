package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/astromechza/automerge-relay/pkg/config"
	"github.com/astromechza/automerge-relay/pkg/journal"
	"github.com/astromechza/automerge-relay/pkg/syncer"
	"github.com/astromechza/automerge-relay/pkg/todo"
	"github.com/astromechza/automerge-relay/pkg/transport"
	"github.com/astromechza/automerge-relay/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	configVar := flag.String("config", "", "path to a toml config file")
	addrVar := flag.String("addr", "", "the address to listen on, overrides the config file")
	flag.Parse()

	cfg, err := config.LoadRelay(*configVar)
	if err != nil {
		return err
	}
	if *addrVar != "" {
		cfg.Addr = *addrVar
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	store, err := todo.New("")
	if err != nil {
		return err
	}
	if len(cfg.SeedItems) > 0 {
		if _, err := store.Apply(todo.Seed(cfg.SeedItems...)); err != nil {
			return fmt.Errorf("failed to seed doc: %w", err)
		}
	}
	slog.Info("established base doc", "actor", store.ActorID(), "heads", store.Current().Heads, "items", len(store.Current().Items))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := new(sync.WaitGroup)

	var observer syncer.Observer
	if cfg.JournalPath != "" {
		slog.Info("Opening journal", "path", cfg.JournalPath)
		j, err := journal.Open(cfg.JournalPath, 256)
		if err != nil {
			return err
		}
		defer j.Close()
		observer = j

		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Run(ctx)
		}()
	}

	loop := syncer.NewLoop(64)
	srv := transport.NewServer(loop, store, cfg.SendQueue)
	relay := syncer.NewRelay(store, srv, slog.Default(), observer)

	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.Router(relay)}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
			cancel()
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
	_ = httpServer.Close()
	srv.Close()

	wg.Wait()

	if cfg.DumpDir != "" {
		if err := dump(store, cfg.DumpDir, cfg.RenderHistory); err != nil {
			slog.Error("failed to dump", "err", err)
		}
	}
	return nil
}

func dump(store *todo.Store, dir string, render bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dump dir: %w", err)
	}
	tf := filepath.Join(dir, store.ActorID()+".automerge")
	if err := os.WriteFile(tf, store.Save(), 0o644); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}
	slog.Info("dumped", "path", tf, "items", store.Current().Summary())

	if !render {
		return nil
	}
	doc, err := store.Fork()
	if err != nil {
		return fmt.Errorf("failed to fork doc: %w", err)
	}
	svgPath, err := viz.RenderToTemp(doc, dir)
	if err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	slog.Info("rendered", "path", "file://"+svgPath)
	return nil
}
