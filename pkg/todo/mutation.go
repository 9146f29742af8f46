package todo

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

// Mutation is a named change to the document. Name becomes the automerge commit message.
type Mutation struct {
	Name string
	Fn   func(doc *automerge.Doc) error
}

func newItem(text string) map[string]any {
	return map[string]any{"text": text, "done": false}
}

// Seed replaces the item list with the given texts, none of them done.
func Seed(texts ...string) Mutation {
	return Mutation{
		Name: "seed items",
		Fn: func(doc *automerge.Doc) error {
			items := make([]any, 0, len(texts))
			for _, t := range texts {
				items = append(items, newItem(t))
			}
			return doc.Path("items").Set(items)
		},
	}
}

// AddItem appends a new item, creating the list if the document has none yet.
func AddItem(text string) Mutation {
	return Mutation{
		Name: "add item",
		Fn: func(doc *automerge.Doc) error {
			v, err := doc.Path("items").Get()
			if err != nil {
				return fmt.Errorf("failed to read items: %w", err)
			}
			if v.Kind() != automerge.KindList {
				if err := doc.Path("items").Set([]any{}); err != nil {
					return fmt.Errorf("failed to create items: %w", err)
				}
			}
			return doc.Path("items").List().Append(newItem(text))
		},
	}
}

// ToggleItem flips the done flag of the item at index.
func ToggleItem(index int) Mutation {
	return Mutation{
		Name: "toggle item",
		Fn: func(doc *automerge.Doc) error {
			n, err := itemCount(doc)
			if err != nil {
				return fmt.Errorf("failed to read items: %w", err)
			}
			if index < 0 || index >= n {
				return fmt.Errorf("%w: %d of %d", ErrNoSuchItem, index, n)
			}
			done, err := automerge.As[bool](doc.Path("items", index, "done").Get())
			if err != nil {
				return fmt.Errorf("failed to read item %d: %w", index, err)
			}
			return doc.Path("items", index, "done").Set(!done)
		},
	}
}
