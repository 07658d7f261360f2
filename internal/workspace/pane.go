package workspace

import (
	"fmt"
	"slices"

	"github.com/starford/canvasfocus/internal/apperr"
	"github.com/starford/canvasfocus/internal/sse"
)

// pane is a handle on one workspace surface. Handles stay valid after the
// surface closes; they just stop doing anything.
type pane struct {
	ws *Workspace
	id string
}

func (p *pane) ID() string { return p.id }

func (p *pane) Current() string {
	var path string
	p.ws.read(p.id, func(i *Info) { path = i.Path })
	return path
}

// Open displays path. The document must exist in the vault.
func (p *pane) Open(path string, focus bool) error {
	ok, err := p.ws.fs.Exists(path)
	if err != nil {
		return fmt.Errorf("workspace: open %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("workspace: open %s: %w", path, apperr.ErrNotFound)
	}
	if _, ok := p.ws.mutate(p.id, func(i *Info) bool {
		i.Path = path
		return true
	}); !ok {
		return fmt.Errorf("workspace: surface %s: %w", p.id, apperr.ErrNotFound)
	}
	p.ws.pub.Publish(sse.Event{Type: sse.TypeSurfaceOpened, Data: map[string]any{
		"id":    p.id,
		"path":  path,
		"focus": focus,
	}})
	return nil
}

func (p *pane) Pinned() bool {
	var pinned bool
	p.ws.read(p.id, func(i *Info) { pinned = i.Pinned })
	return pinned
}

func (p *pane) SetPinned(pinned bool) {
	p.ws.mutate(p.id, func(i *Info) bool {
		if i.Pinned == pinned {
			return false
		}
		i.Pinned = pinned
		return true
	})
}

func (p *pane) Label() string {
	var label string
	p.ws.read(p.id, func(i *Info) { label = i.Label })
	return label
}

func (p *pane) SetLabel(label string) {
	p.ws.mutate(p.id, func(i *Info) bool {
		if i.Label == label {
			return false
		}
		i.Label = label
		return true
	})
}

func (p *pane) HasClass(name string) bool {
	var has bool
	p.ws.read(p.id, func(i *Info) { has = slices.Contains(i.Classes, name) })
	return has
}

func (p *pane) SetClass(name string, on bool) {
	p.ws.mutate(p.id, func(i *Info) bool {
		return toggle(&i.Classes, name, on)
	})
}

func (p *pane) HasAction(name string) bool {
	var has bool
	p.ws.read(p.id, func(i *Info) { has = slices.Contains(i.Actions, name) })
	return has
}

func (p *pane) AddAction(name string) {
	p.ws.mutate(p.id, func(i *Info) bool {
		return toggle(&i.Actions, name, true)
	})
}

func (p *pane) RemoveAction(name string) {
	p.ws.mutate(p.id, func(i *Info) bool {
		return toggle(&i.Actions, name, false)
	})
}

// Detach closes the surface without notifying OnClose listeners.
func (p *pane) Detach() {
	_, _ = p.ws.remove(p.id, "detached")
}

func toggle(set *[]string, name string, on bool) bool {
	has := slices.Contains(*set, name)
	switch {
	case on && !has:
		*set = append(*set, name)
		return true
	case !on && has:
		*set = slices.DeleteFunc(*set, func(s string) bool { return s == name })
		return true
	}
	return false
}
