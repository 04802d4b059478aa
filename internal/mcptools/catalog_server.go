package mcptools

import "fmt"

func init() {
	Register(ToolSpec{
		Name:        "get_server_info",
		Description: "Fetch a server's name, icon, and member count.",
		InputSchema: objectSchema([]string{"server_id"}, map[string]any{
			"server_id": stringProp("guild id"),
		}),
		Handler: getServerInfo,
	})

	Register(ToolSpec{
		Name:        "list_servers",
		Description: "List every server this Entity is currently permitted on.",
		InputSchema: objectSchema(nil, map[string]any{}),
		Handler:     listServers,
	})

	Register(ToolSpec{
		Name:        "leave_server",
		Description: "Remove this Entity from a server: deletes its permission row and best-effort deletes its auto-created mentionable role.",
		InputSchema: objectSchema([]string{"server_id"}, map[string]any{
			"server_id": stringProp("guild id to leave"),
		}),
		Handler: leaveServer,
	})
}

func getServerInfo(tc *Context, args map[string]any) (any, error) {
	serverID, err := argString(args, "server_id")
	if err != nil {
		return nil, err
	}
	guild, err := tc.Session.Guild(serverID)
	if err != nil {
		return nil, fmt.Errorf("get_server_info: %w", err)
	}
	return guild, nil
}

func listServers(tc *Context, _ map[string]any) (any, error) {
	ids := make([]string, 0, len(tc.Servers))
	for _, es := range tc.Servers {
		ids = append(ids, es.ServerID)
	}
	return map[string]any{"server_ids": ids}, nil
}

func leaveServer(tc *Context, args map[string]any) (any, error) {
	serverID, err := argString(args, "server_id")
	if err != nil {
		return nil, err
	}

	var roleID string
	for _, es := range tc.Servers {
		if es.ServerID == serverID {
			roleID = es.RoleID
			break
		}
	}

	if err := tc.Registry.RemoveEntityServer(tc.Ctx, tc.Entity.ID, serverID); err != nil {
		return nil, fmt.Errorf("leave_server: %w", err)
	}

	// Best-effort: role cleanup failure does not roll back the row removal
	// (spec.md §4.2 "removing the EntityServer MUST trigger role cleanup",
	// §4.6 "best-effort role deletion").
	_ = tc.Webhook.DeleteRole(tc.Ctx, serverID, roleID)

	return map[string]any{"left": true}, nil
}
