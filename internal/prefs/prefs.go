// Package prefs stores the user's per-speaker configs and selection.
package prefs

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/srg/boks/internal/device"
)

// Prefs is the whole stored document.
type Prefs struct {
	Configs  map[string]device.Config `yaml:"configs,omitempty" json:"configs,omitempty"`
	Selected []string                 `yaml:"selected,omitempty" json:"selected,omitempty"`
}

// Store is a preference store with change notification.
type Store interface {
	// Data yields the current prefs and every later change until ctx is done.
	Data(ctx context.Context) <-chan Prefs
	// Current returns the current prefs.
	Current() Prefs
	// Update applies fn as one read-modify-write. fn receives a copy.
	Update(ctx context.Context, fn func(Prefs) (Prefs, error)) error
}

// ConfigFor returns the stored config for address, or the default.
func (p Prefs) ConfigFor(address string) device.Config {
	if c, ok := p.Configs[normalize(address)]; ok {
		return c
	}
	return device.DefaultConfig()
}

// SetConfig stores cfg for address.
func (p *Prefs) SetConfig(address string, cfg device.Config) {
	if p.Configs == nil {
		p.Configs = make(map[string]device.Config)
	}
	p.Configs[normalize(address)] = cfg
}

func (p Prefs) IsSelected(address string) bool {
	return slices.Contains(p.Selected, normalize(address))
}

// Select adds addresses to the selection, keeping it sorted and unique.
func (p *Prefs) Select(addresses ...string) {
	for _, a := range addresses {
		a = normalize(a)
		if !slices.Contains(p.Selected, a) {
			p.Selected = append(p.Selected, a)
		}
	}
	sort.Strings(p.Selected)
}

// Deselect removes addresses from the selection.
func (p *Prefs) Deselect(addresses ...string) {
	p.Selected = slices.DeleteFunc(p.Selected, func(s string) bool {
		return slices.ContainsFunc(addresses, func(a string) bool { return normalize(a) == s })
	})
}

// SelectedConfig merges the configs of the selected speakers.
func (p Prefs) SelectedConfig() device.Config {
	configs := make([]device.Config, 0, len(p.Selected))
	for _, a := range p.Selected {
		configs = append(configs, p.ConfigFor(a))
	}
	return device.Merge(configs...)
}

// Clone returns a deep copy.
func (p Prefs) Clone() Prefs {
	return Prefs{
		Configs:  maps.Clone(p.Configs),
		Selected: slices.Clone(p.Selected),
	}
}

// Equal reports whether two documents hold the same data. A nil and an
// empty collection are equal.
func Equal(a, b Prefs) bool {
	return maps.Equal(a.Configs, b.Configs) && slices.Equal(a.Selected, b.Selected)
}

func normalize(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}
