package mcpserver

import "github.com/rakunlabs/arachne/internal/registry"

// Capability is the union, over every EntityServer row an Entity has, of
// what it may touch: which tools, which channels, which servers (spec.md
// §4.7 "Capability scoping"). Built once per request.
type Capability struct {
	AllTools    bool
	Tools       registry.Set
	AllChannels bool
	Channels    registry.Set
	Servers     registry.Set

	// BlockedChannels is the union of every row's owner-set BlockedChannels.
	// A blocked channel is still whitelisted (routing stays read-only, spec.md
	// §4.2's derived-state table), so it is tracked separately from Channels
	// rather than subtracted from it.
	BlockedChannels registry.Set
}

func computeCapability(rows []registry.EntityServer) Capability {
	cap := Capability{
		Tools:           registry.NewSet(),
		Channels:        registry.NewSet(),
		Servers:         registry.NewSet(),
		BlockedChannels: registry.NewSet(),
	}
	for _, es := range rows {
		cap.Servers = cap.Servers.Union(registry.NewSet(es.ServerID))

		if es.ToolWhitelist.Empty() {
			cap.AllTools = true
		} else {
			cap.Tools = cap.Tools.Union(es.ToolWhitelist)
		}

		if es.ChannelWhitelist.Empty() {
			cap.AllChannels = true
		} else {
			cap.Channels = cap.Channels.Union(es.ChannelWhitelist)
		}

		cap.BlockedChannels = cap.BlockedChannels.Union(es.BlockedChannels)
	}
	return cap
}

func (c Capability) allowsTool(name string) bool {
	return c.AllTools || c.Tools.Has(name)
}

func (c Capability) allowsChannel(id string) bool {
	if id == "" {
		return true
	}
	return c.AllChannels || c.Channels.Has(id)
}

func (c Capability) allowsServer(id string) bool {
	if id == "" {
		return true
	}
	return c.Servers.Has(id)
}

// blocksChannel reports whether id is blocked by any EntityServer row, i.e.
// whitelisted-but-read-only per spec.md §4.2's derived-state table.
func (c Capability) blocksChannel(id string) bool {
	return id != "" && c.BlockedChannels.Has(id)
}
