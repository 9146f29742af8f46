package todo

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"
)

// ErrNoSuchItem is returned by mutations that address an item index the document does not have.
var ErrNoSuchItem = errors.New("no such item")

// Item is one entry of the shared todo list.
type Item struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Snapshot is one version of the document as seen by readers. It is never modified after it is published.
type Snapshot struct {
	Heads []string `json:"heads"`
	Items []Item   `json:"items"`
}

// Store holds the local automerge document. Apply, Merge and GenerateMessage must be called from a single
// goroutine; Current may be called from anywhere.
type Store struct {
	doc     *automerge.Doc
	current atomic.Pointer[Snapshot]
}

// NewActorID returns a random hex actor id.
func NewActorID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// New creates an empty document owned by actorID. An empty actorID picks a random one.
func New(actorID string) (*Store, error) {
	return wrap(automerge.New(), actorID)
}

// Load restores a document previously written by Save and attributes further changes to actorID.
func Load(raw []byte, actorID string) (*Store, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	return wrap(doc, actorID)
}

func wrap(doc *automerge.Doc, actorID string) (*Store, error) {
	if actorID == "" {
		actorID = NewActorID()
	}
	if err := doc.SetActorID(actorID); err != nil {
		return nil, fmt.Errorf("failed to set actor id: %w", err)
	}
	s := &Store{doc: doc}
	s.publish()
	return s, nil
}

func (s *Store) ActorID() string {
	return s.doc.ActorID()
}

// Current returns the latest published snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Apply runs the mutation against the document, commits it and publishes the resulting snapshot.
func (s *Store) Apply(m Mutation) (*Snapshot, error) {
	if err := m.Fn(s.doc); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", m.Name, err)
	}
	if _, err := s.doc.Commit(m.Name); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", m.Name, err)
	}
	return s.publish(), nil
}

// Save returns the full binary encoding of the document.
func (s *Store) Save() []byte {
	return s.doc.Save()
}

// Fork returns an independent copy of the document for read-only inspection.
func (s *Store) Fork() (*automerge.Doc, error) {
	return s.doc.Fork()
}

func (s *Store) publish() *Snapshot {
	snap := ReadSnapshot(s.doc)
	s.current.Store(snap)
	return snap
}

// ReadSnapshot reads the todo list out of any document, including historical forks.
func ReadSnapshot(doc *automerge.Doc) *Snapshot {
	heads := doc.Heads()
	snap := &Snapshot{Heads: make([]string, 0, len(heads)), Items: []Item{}}
	for _, h := range heads {
		snap.Heads = append(snap.Heads, h.String())
	}
	slices.Sort(snap.Heads)

	n, _ := itemCount(doc)
	for i := 0; i < n; i++ {
		// fields of the wrong kind read as their zero value
		text, _ := automerge.As[string](doc.Path("items", i, "text").Get())
		done, _ := automerge.As[bool](doc.Path("items", i, "done").Get())
		snap.Items = append(snap.Items, Item{Text: text, Done: done})
	}
	return snap
}

// Summary is a short description such as "3 items/1 done".
func (s *Snapshot) Summary() string {
	done := 0
	for _, it := range s.Items {
		if it.Done {
			done++
		}
	}
	return fmt.Sprintf("%d items/%d done", len(s.Items), done)
}

func itemCount(doc *automerge.Doc) (int, error) {
	v, err := doc.Path("items").Get()
	if err != nil {
		return 0, err
	}
	if v.Kind() != automerge.KindList {
		return 0, nil
	}
	return v.List().Len(), nil
}
