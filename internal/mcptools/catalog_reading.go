package mcptools

import (
	"fmt"

	"github.com/rakunlabs/arachne/internal/bus"
)

func init() {
	Register(ToolSpec{
		Name:        "read_messages",
		Description: "Read this Entity's in-memory queue of inbound chat messages, optionally filtered to a channel or to messages that matched one of its trigger words.",
		InputSchema: objectSchema(nil, map[string]any{
			"channel_id":     stringProp("restrict to one channel id"),
			"triggered_only": boolProp("only return trigger-word messages (a role mention alone does not count)"),
			"limit":          intProp("maximum messages to return; the most recent are kept, oldest first"),
		}),
		Handler: readMessages,
	})

	Register(ToolSpec{
		Name:        "get_channel_history",
		Description: "Fetch recent message history directly from the channel, bypassing the queue (used when the queue has dropped messages under load).",
		InputSchema: objectSchema([]string{"channel_id"}, map[string]any{
			"channel_id": stringProp("channel to read"),
			"limit":      intProp("maximum messages to return"),
		}),
		Handler: getChannelHistory,
	})

	Register(ToolSpec{
		Name:        "get_message",
		Description: "Fetch a single message by id.",
		InputSchema: objectSchema([]string{"channel_id", "message_id"}, map[string]any{
			"channel_id": stringProp("channel containing the message"),
			"message_id": stringProp("message id"),
		}),
		Handler: getMessage,
	})

	Register(ToolSpec{
		Name:        "list_pinned_messages",
		Description: "List every pinned message in a channel.",
		InputSchema: objectSchema([]string{"channel_id"}, map[string]any{
			"channel_id": stringProp("channel to inspect"),
		}),
		Handler: listPinnedMessages,
	})
}

func readMessages(tc *Context, args map[string]any) (any, error) {
	opts := bus.ReadOptions{
		ChannelID:     argStringOpt(args, "channel_id"),
		TriggeredOnly: argBoolOpt(args, "triggered_only", false),
		Limit:         argIntOpt(args, "limit", 50),
		Key:           tc.DerivedKey,
	}
	return tc.Bus.Read(tc.Entity.ID, opts), nil
}

func getChannelHistory(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	limit := argIntOpt(args, "limit", 50)
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	msgs, err := tc.Session.ChannelMessages(channelID, limit, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("get_channel_history: %w", err)
	}
	return msgs, nil
}

func getMessage(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	messageID, err := argString(args, "message_id")
	if err != nil {
		return nil, err
	}
	msg, err := tc.Session.ChannelMessage(channelID, messageID)
	if err != nil {
		return nil, fmt.Errorf("get_message: %w", err)
	}
	return msg, nil
}

func listPinnedMessages(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	pins, err := tc.Session.ChannelMessagesPinned(channelID)
	if err != nil {
		return nil, fmt.Errorf("list_pinned_messages: %w", err)
	}
	return pins, nil
}
