package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-graphviz"

	"github.com/astromechza/automerge-relay/pkg/journal"
	"github.com/astromechza/automerge-relay/pkg/todo"
	"github.com/astromechza/automerge-relay/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	docVar := flag.String("doc", "", "a document dumped by the relay")
	journalVar := flag.String("journal", "", "a relay journal database")
	limitVar := flag.Int("n", 50, "how many journal events to print")
	flag.Parse()
	if *docVar == "" && *journalVar == "" {
		return fmt.Errorf("expected -doc or -journal")
	}

	if *docVar != "" {
		if err := inspectDoc(*docVar); err != nil {
			return err
		}
	}
	if *journalVar != "" {
		if err := inspectJournal(*journalVar, *limitVar); err != nil {
			return err
		}
	}
	return nil
}

func inspectDoc(path string) error {
	buff, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	store, err := todo.Load(buff, "")
	if err != nil {
		return err
	}
	snap := store.Current()
	slog.Info("loaded doc", "items", snap.Summary())
	slog.Info("loaded heads", "heads", snap.Heads)
	for i, item := range snap.Items {
		slog.Info("item", "i", i, "text", item.Text, "done", item.Done)
	}

	doc, err := store.Fork()
	if err != nil {
		return fmt.Errorf("failed to fork doc: %w", err)
	}
	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	for i, change := range changes {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", change.Hash(), "actor", change.ActorID(), "message", change.Message(), "dep", change.Dependencies())
	}
	return viz.RenderHistory(doc, graphviz.Format("dot"), os.Stdout)
}

func inspectJournal(path string, limit int) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	j, err := journal.Open(path, 0)
	if err != nil {
		return err
	}
	defer j.Close()
	entries, err := j.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Printf("%s %-6s %-36s %-8s %6d %s\n", e.At.Format(time.RFC3339Nano), e.Role, e.Peer, e.Kind, e.Bytes, e.Err)
	}
	return nil
}
