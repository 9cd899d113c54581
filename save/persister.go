package save

import (
	"context"

	"github.com/chazu/storyvm/vm"
	"github.com/pkg/errors"
)

// DefaultSlot is the slot used when none is configured.
const DefaultSlot = "default"

// Persister connects a running machine to a Store. It implements
// vm.Persistence; every save goes to the same slot.
type Persister struct {
	ctx   context.Context
	store Store
	story []byte
	slot  string
}

// NewPersister saves into slot of store. story is the original story file,
// needed to encode dynamic memory compactly.
func NewPersister(ctx context.Context, store Store, story []byte, slot string) *Persister {
	if slot == "" {
		slot = DefaultSlot
	}
	return &Persister{ctx: ctx, store: store, story: story, slot: slot}
}

// Slot returns the slot this persister writes.
func (p *Persister) Slot() string { return p.slot }

// Save encodes s and stores it.
func (p *Persister) Save(s *vm.Snapshot) error {
	data, err := Marshal(s, p.story)
	if err != nil {
		return err
	}
	e, err := p.store.Put(p.ctx, s.Story.String(), p.slot, data)
	if err != nil {
		return err
	}
	log.Infof("saved %s slot %q (%d bytes, id %s)", s.Story, p.slot, e.Size, e.ID)
	return nil
}

// Restore loads the slot for story. A save made by another build of the
// story is refused.
func (p *Persister) Restore(story vm.StoryID) (*vm.Snapshot, error) {
	data, err := p.store.Get(p.ctx, story.String(), p.slot)
	if err != nil {
		return nil, err
	}
	s, err := Unmarshal(data, p.story)
	if err != nil {
		return nil, err
	}
	if s.Story != story {
		return nil, errors.Errorf("save in slot %q belongs to story %s, not %s", p.slot, s.Story, story)
	}
	log.Infof("restored %s slot %q", story, p.slot)
	return s, nil
}
