package mcptools

import "time"

func init() {
	Register(ToolSpec{
		Name:        "get_current_time",
		Description: "Return the bridge's current time in RFC3339 (UTC).",
		InputSchema: objectSchema(nil, map[string]any{}),
		Handler:     getCurrentTime,
	})

	Register(ToolSpec{
		Name:        "ping",
		Description: "Liveness check; echoes back immediately.",
		InputSchema: objectSchema(nil, map[string]any{}),
		Handler:     ping,
	})

	Register(ToolSpec{
		Name:        "whoami",
		Description: "Return this Entity's own profile as the bridge sees it.",
		InputSchema: objectSchema(nil, map[string]any{}),
		Handler:     whoami,
	})
}

func getCurrentTime(_ *Context, _ map[string]any) (any, error) {
	return map[string]any{"time": time.Now().UTC().Format(time.RFC3339)}, nil
}

func ping(_ *Context, _ map[string]any) (any, error) {
	return map[string]any{"pong": true}, nil
}

func whoami(tc *Context, _ map[string]any) (any, error) {
	return map[string]any{
		"entity_id":   tc.Entity.ID,
		"name":        tc.Entity.Name,
		"platform":    tc.Entity.Platform,
		"description": tc.Entity.Description,
		"owner_id":    tc.Entity.OwnerID,
	}, nil
}
