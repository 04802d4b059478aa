// Package mcptools is the ~31-tool catalog the MCP Endpoint publishes
// (spec.md §4.7). Tools register themselves via init(), the same
// "tagged-variant, table-lookup dispatch" pattern the workflow engine uses
// for its node types (internal/service/workflow/node.go's
// RegisterNodeType/nodeFactories). internal/mcpserver builds a fresh
// *mcp.MCP per request, registers every entry in this catalog behind a
// centralized capability gate, and lets pkg/mcp's JSON-RPC dispatch do the
// rest.
package mcptools

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rakunlabs/arachne/internal/bus"
	"github.com/rakunlabs/arachne/internal/keystore"
	"github.com/rakunlabs/arachne/internal/registry"
	"github.com/rakunlabs/arachne/internal/webhook"
)

// Context is the per-request environment threaded into every tool handler.
// It carries only references; Registry, Bus, Keystore, and Webhook each own
// their own state.
type Context struct {
	Ctx context.Context

	Entity registry.Entity
	// Servers is every EntityServer row for this Entity, computed once by
	// internal/mcpserver per request.
	Servers []registry.EntityServer

	Registry *registry.Registry
	Bus      *bus.Bus
	Keystore *keystore.Store
	Webhook  *webhook.Proxy
	Session  *discordgo.Session

	// DerivedKey is non-nil only for an API-key-authorized request (spec.md
	// §4.7); an OAuth-authorized request reads encrypted bus content back as
	// a sentinel string.
	DerivedKey []byte
}

// Handler implements one tool's body. Centralized capability checks
// (channel/server/tool whitelist) run before a handler is ever invoked.
type Handler func(tc *Context, args map[string]any) (any, error)

// ToolSpec is one catalog entry.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     Handler
}

var catalog = make(map[string]*ToolSpec)

// Register adds a tool to the catalog. Called from each tool file's init().
func Register(spec ToolSpec) {
	if _, exists := catalog[spec.Name]; exists {
		panic("mcptools: duplicate tool name " + spec.Name)
	}
	catalog[spec.Name] = &spec
}

// Get returns the named tool, or nil if unknown.
func Get(name string) *ToolSpec {
	return catalog[name]
}

// All returns every registered tool, order unspecified.
func All() []*ToolSpec {
	out := make([]*ToolSpec, 0, len(catalog))
	for _, spec := range catalog {
		out = append(out, spec)
	}
	return out
}

// ─── argument helpers ───

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

func argStringOpt(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argBoolOpt(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argIntOpt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// ─── schema helpers ───

func objectSchema(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}
