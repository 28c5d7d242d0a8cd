package discovery

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/srg/boks/internal/device"
)

type knownEntry struct {
	device device.Device
	seq    uint64
}

// KnownCache remembers devices seen by earlier scans so a new discovery
// cycle can probe them before the first advertisement arrives. It holds at
// most limit devices and evicts the least recently remembered.
type KnownCache struct {
	limit   int
	seq     atomic.Uint64
	devices *hashmap.Map[string, knownEntry]
	evict   sync.Mutex
}

// NewKnownCache creates a cache; limit <= 0 means unbounded.
func NewKnownCache(limit int) *KnownCache {
	return &KnownCache{
		limit:   limit,
		devices: hashmap.New[string, knownEntry](),
	}
}

// Remember stores or refreshes d.
func (c *KnownCache) Remember(d device.Device) {
	c.devices.Set(d.Address, knownEntry{device: d, seq: c.seq.Add(1)})
	if c.limit <= 0 || c.devices.Len() <= c.limit {
		return
	}

	c.evict.Lock()
	defer c.evict.Unlock()
	for c.devices.Len() > c.limit {
		var (
			oldest string
			lowest uint64
			found  bool
		)
		c.devices.Range(func(address string, e knownEntry) bool {
			if !found || e.seq < lowest {
				oldest, lowest, found = address, e.seq, true
			}
			return true
		})
		if !found {
			return
		}
		c.devices.Del(oldest)
	}
}

func (c *KnownCache) Forget(address string) {
	c.devices.Del(address)
}

func (c *KnownCache) Contains(address string) bool {
	_, ok := c.devices.Get(address)
	return ok
}

// Devices returns the cached devices, least recently remembered first.
func (c *KnownCache) Devices() []device.Device {
	entries := make([]knownEntry, 0, c.devices.Len())
	c.devices.Range(func(_ string, e knownEntry) bool {
		entries = append(entries, e)
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]device.Device, len(entries))
	for i, e := range entries {
		out[i] = e.device
	}
	return out
}

func (c *KnownCache) Len() int { return c.devices.Len() }

// Reset forgets everything.
func (c *KnownCache) Reset() {
	var addresses []string
	c.devices.Range(func(address string, _ knownEntry) bool {
		addresses = append(addresses, address)
		return true
	})
	for _, a := range addresses {
		c.devices.Del(a)
	}
}
