package mcptools

import "fmt"

func init() {
	Register(ToolSpec{
		Name:        "add_reaction",
		Description: "Add an emoji reaction to a message.",
		InputSchema: objectSchema([]string{"channel_id", "message_id", "emoji"}, map[string]any{
			"channel_id": stringProp("channel containing the message"),
			"message_id": stringProp("message id"),
			"emoji":      stringProp("unicode emoji or custom emoji id:name"),
		}),
		Handler: addReaction,
	})

	Register(ToolSpec{
		Name:        "remove_reaction",
		Description: "Remove this Entity's own emoji reaction from a message.",
		InputSchema: objectSchema([]string{"channel_id", "message_id", "emoji"}, map[string]any{
			"channel_id": stringProp("channel containing the message"),
			"message_id": stringProp("message id"),
			"emoji":      stringProp("unicode emoji or custom emoji id:name"),
		}),
		Handler: removeReaction,
	})

	Register(ToolSpec{
		Name:        "clear_reactions",
		Description: "Remove every reaction from a message.",
		InputSchema: objectSchema([]string{"channel_id", "message_id"}, map[string]any{
			"channel_id": stringProp("channel containing the message"),
			"message_id": stringProp("message id"),
		}),
		Handler: clearReactions,
	})
}

func addReaction(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	messageID, err := argString(args, "message_id")
	if err != nil {
		return nil, err
	}
	emoji, err := argString(args, "emoji")
	if err != nil {
		return nil, err
	}
	if err := tc.Session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return nil, fmt.Errorf("add_reaction: %w", err)
	}
	return map[string]any{"added": true}, nil
}

func removeReaction(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	messageID, err := argString(args, "message_id")
	if err != nil {
		return nil, err
	}
	emoji, err := argString(args, "emoji")
	if err != nil {
		return nil, err
	}
	if err := tc.Session.MessageReactionRemove(channelID, messageID, emoji, "@me"); err != nil {
		return nil, fmt.Errorf("remove_reaction: %w", err)
	}
	return map[string]any{"removed": true}, nil
}

func clearReactions(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	messageID, err := argString(args, "message_id")
	if err != nil {
		return nil, err
	}
	if err := tc.Session.MessageReactionsRemoveAll(channelID, messageID); err != nil {
		return nil, fmt.Errorf("clear_reactions: %w", err)
	}
	return map[string]any{"cleared": true}, nil
}
