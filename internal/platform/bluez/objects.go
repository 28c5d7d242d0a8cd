package bluez

import (
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/srg/boks/internal/device"
)

// managedObjects is the reply shape of ObjectManager.GetManagedObjects.
type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

type peerState struct {
	path      dbus.ObjectPath
	peer      device.Peer
	paired    bool
	connected bool
}

// snapshot is one adapter's view parsed out of the managed object tree.
type snapshot struct {
	powered bool
	peers   []peerState
	// playing is the device path of the active media transport, if any.
	playing dbus.ObjectPath
}

// deviceObjectPath converts "AA:BB:CC:DD:EE:FF" to
// "<adapter>/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter dbus.ObjectPath, address string) dbus.ObjectPath {
	return dbus.ObjectPath(string(adapter) + "/dev_" + strings.ReplaceAll(strings.ToUpper(address), ":", "_"))
}

func parseObjects(objects managedObjects, adapter dbus.ObjectPath) snapshot {
	var snap snapshot
	prefix := string(adapter) + "/"

	if props, ok := objects[adapter][adapterIface]; ok {
		snap.powered, _ = variantValue[bool](props, "Powered")
	}

	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}

		if props, ok := ifaces[deviceIface]; ok {
			address, _ := variantValue[string](props, "Address")
			if address == "" {
				continue
			}
			alias, ok := variantValue[string](props, "Alias")
			if !ok || alias == "" {
				alias, _ = variantValue[string](props, "Name")
			}
			paired, _ := variantValue[bool](props, "Paired")
			bonded, _ := variantValue[bool](props, "Bonded")
			connected, _ := variantValue[bool](props, "Connected")

			snap.peers = append(snap.peers, peerState{
				path:      path,
				peer:      device.Peer{Address: strings.ToUpper(address), Alias: alias},
				paired:    paired || bonded,
				connected: connected,
			})
		}

		if props, ok := ifaces[transportIface]; ok {
			state, _ := variantValue[string](props, "State")
			if state == "active" {
				snap.playing, _ = variantValue[dbus.ObjectPath](props, "Device")
			}
		}
	}

	sort.Slice(snap.peers, func(i, j int) bool { return snap.peers[i].path < snap.peers[j].path })
	return snap
}

func (s snapshot) filter(keep func(peerState) bool) []device.Peer {
	var out []device.Peer
	for _, p := range s.peers {
		if keep(p) {
			out = append(out, p.peer)
		}
	}
	return out
}

func (s snapshot) byPath(path dbus.ObjectPath) (peerState, bool) {
	for _, p := range s.peers {
		if p.path == path {
			return p, true
		}
	}
	return peerState{}, false
}

func (s snapshot) byAddress(address string) (peerState, bool) {
	for _, p := range s.peers {
		if strings.EqualFold(p.peer.Address, address) {
			return p, true
		}
	}
	return peerState{}, false
}

func variantValue[T any](props map[string]dbus.Variant, name string) (T, bool) {
	var zero T
	v, ok := props[name]
	if !ok {
		return zero, false
	}
	val, ok := v.Value().(T)
	return val, ok
}
