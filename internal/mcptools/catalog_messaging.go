package mcptools

import (
	"encoding/base64"
	"fmt"

	"github.com/rakunlabs/arachne/internal/webhook"
)

func identityFor(tc *Context) webhook.Identity {
	return webhook.Identity{Username: tc.Entity.Name, AvatarURL: tc.Entity.AvatarURL}
}

func init() {
	Register(ToolSpec{
		Name:        "send_message",
		Description: "Post a text message to a channel under this Entity's identity.",
		InputSchema: objectSchema([]string{"channel_id", "content"}, map[string]any{
			"channel_id": stringProp("destination channel id"),
			"content":    stringProp("message text"),
		}),
		Handler: sendMessage,
	})

	Register(ToolSpec{
		Name:        "send_file",
		Description: "Post a file attachment (base64-encoded content) to a channel under this Entity's identity.",
		InputSchema: objectSchema([]string{"channel_id", "filename", "content_base64"}, map[string]any{
			"channel_id":     stringProp("destination channel id"),
			"filename":       stringProp("attachment file name"),
			"content_base64": stringProp("base64-encoded file bytes"),
		}),
		Handler: sendFile,
	})

	Register(ToolSpec{
		Name:        "edit_message",
		Description: "Edit a message this Entity previously posted via the webhook.",
		InputSchema: objectSchema([]string{"channel_id", "message_id", "content"}, map[string]any{
			"channel_id": stringProp("channel containing the message"),
			"message_id": stringProp("message id to edit"),
			"content":    stringProp("replacement text"),
		}),
		Handler: editMessage,
	})

	Register(ToolSpec{
		Name:        "delete_message",
		Description: "Delete a message in a channel.",
		InputSchema: objectSchema([]string{"channel_id", "message_id"}, map[string]any{
			"channel_id": stringProp("channel containing the message"),
			"message_id": stringProp("message id to delete"),
		}),
		Handler: deleteMessage,
	})

	Register(ToolSpec{
		Name:        "pin_message",
		Description: "Pin or unpin a message in a channel.",
		InputSchema: objectSchema([]string{"channel_id", "message_id"}, map[string]any{
			"channel_id": stringProp("channel containing the message"),
			"message_id": stringProp("message id"),
			"unpin":      boolProp("unpin instead of pin"),
		}),
		Handler: pinMessage,
	})

	Register(ToolSpec{
		Name:        "introduce",
		Description: "Post this Entity's self-introduction (name, description, accent color) to a channel, used when it first joins a server.",
		InputSchema: objectSchema([]string{"channel_id"}, map[string]any{
			"channel_id": stringProp("destination channel id"),
		}),
		Handler: introduce,
	})
}

func sendMessage(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	content, err := argString(args, "content")
	if err != nil {
		return nil, err
	}
	msg, err := tc.Webhook.SendText(tc.Ctx, channelID, tc.Entity.ID, identityFor(tc), content)
	if err != nil {
		return nil, fmt.Errorf("send_message: %w", err)
	}
	return msg, nil
}

func sendFile(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	filename, err := argString(args, "filename")
	if err != nil {
		return nil, err
	}
	encoded, err := argString(args, "content_base64")
	if err != nil {
		return nil, err
	}
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("send_file: decode content_base64: %w", err)
	}
	msg, err := tc.Webhook.SendFile(tc.Ctx, channelID, tc.Entity.ID, identityFor(tc), filename, content)
	if err != nil {
		return nil, fmt.Errorf("send_file: %w", err)
	}
	return msg, nil
}

func editMessage(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	messageID, err := argString(args, "message_id")
	if err != nil {
		return nil, err
	}
	content, err := argString(args, "content")
	if err != nil {
		return nil, err
	}
	msg, err := tc.Webhook.Edit(tc.Ctx, channelID, messageID, content)
	if err != nil {
		return nil, fmt.Errorf("edit_message: %w", err)
	}
	return msg, nil
}

func deleteMessage(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	messageID, err := argString(args, "message_id")
	if err != nil {
		return nil, err
	}
	if err := tc.Session.ChannelMessageDelete(channelID, messageID); err != nil {
		return nil, fmt.Errorf("delete_message: %w", err)
	}
	return map[string]any{"deleted": true}, nil
}

func pinMessage(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	messageID, err := argString(args, "message_id")
	if err != nil {
		return nil, err
	}
	if argBoolOpt(args, "unpin", false) {
		if err := tc.Session.ChannelMessageUnpin(channelID, messageID); err != nil {
			return nil, fmt.Errorf("pin_message: unpin: %w", err)
		}
		return map[string]any{"unpinned": true}, nil
	}
	if err := tc.Session.ChannelMessagePin(channelID, messageID); err != nil {
		return nil, fmt.Errorf("pin_message: %w", err)
	}
	return map[string]any{"pinned": true}, nil
}

func introduce(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	content := tc.Entity.Description
	if content == "" {
		content = fmt.Sprintf("Hi, I'm %s.", tc.Entity.Name)
	}
	msg, err := tc.Webhook.SendText(tc.Ctx, channelID, tc.Entity.ID, identityFor(tc), content)
	if err != nil {
		return nil, fmt.Errorf("introduce: %w", err)
	}
	return msg, nil
}
