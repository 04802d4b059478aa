package mcptools

import "fmt"

func init() {
	Register(ToolSpec{
		Name:        "list_members",
		Description: "List a server's members, paginated.",
		InputSchema: objectSchema([]string{"server_id"}, map[string]any{
			"server_id": stringProp("guild id"),
			"limit":     intProp("maximum members to return, max 1000"),
		}),
		Handler: listMembers,
	})

	Register(ToolSpec{
		Name:        "get_member",
		Description: "Fetch one server member's profile and roles.",
		InputSchema: objectSchema([]string{"server_id", "user_id"}, map[string]any{
			"server_id": stringProp("guild id"),
			"user_id":   stringProp("platform user id"),
		}),
		Handler: getMember,
	})

	Register(ToolSpec{
		Name:        "add_role_to_member",
		Description: "Grant a role to a member.",
		InputSchema: objectSchema([]string{"server_id", "user_id", "role_id"}, map[string]any{
			"server_id": stringProp("guild id"),
			"user_id":   stringProp("platform user id"),
			"role_id":   stringProp("role id to grant"),
		}),
		Handler: addRoleToMember,
	})

	Register(ToolSpec{
		Name:        "remove_role_from_member",
		Description: "Revoke a role from a member.",
		InputSchema: objectSchema([]string{"server_id", "user_id", "role_id"}, map[string]any{
			"server_id": stringProp("guild id"),
			"user_id":   stringProp("platform user id"),
			"role_id":   stringProp("role id to revoke"),
		}),
		Handler: removeRoleFromMember,
	})
}

func listMembers(tc *Context, args map[string]any) (any, error) {
	serverID, err := argString(args, "server_id")
	if err != nil {
		return nil, err
	}
	limit := argIntOpt(args, "limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	members, err := tc.Session.GuildMembers(serverID, "", limit)
	if err != nil {
		return nil, fmt.Errorf("list_members: %w", err)
	}
	return members, nil
}

func getMember(tc *Context, args map[string]any) (any, error) {
	serverID, err := argString(args, "server_id")
	if err != nil {
		return nil, err
	}
	userID, err := argString(args, "user_id")
	if err != nil {
		return nil, err
	}
	member, err := tc.Session.GuildMember(serverID, userID)
	if err != nil {
		return nil, fmt.Errorf("get_member: %w", err)
	}
	return member, nil
}

func addRoleToMember(tc *Context, args map[string]any) (any, error) {
	serverID, err := argString(args, "server_id")
	if err != nil {
		return nil, err
	}
	userID, err := argString(args, "user_id")
	if err != nil {
		return nil, err
	}
	roleID, err := argString(args, "role_id")
	if err != nil {
		return nil, err
	}
	if err := tc.Session.GuildMemberRoleAdd(serverID, userID, roleID); err != nil {
		return nil, fmt.Errorf("add_role_to_member: %w", err)
	}
	return map[string]any{"added": true}, nil
}

func removeRoleFromMember(tc *Context, args map[string]any) (any, error) {
	serverID, err := argString(args, "server_id")
	if err != nil {
		return nil, err
	}
	userID, err := argString(args, "user_id")
	if err != nil {
		return nil, err
	}
	roleID, err := argString(args, "role_id")
	if err != nil {
		return nil, err
	}
	if err := tc.Session.GuildMemberRoleRemove(serverID, userID, roleID); err != nil {
		return nil, fmt.Errorf("remove_role_from_member: %w", err)
	}
	return map[string]any{"removed": true}, nil
}
