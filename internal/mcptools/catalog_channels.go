package mcptools

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

func init() {
	Register(ToolSpec{
		Name:        "create_channel",
		Description: "Create a new text channel on a server.",
		InputSchema: objectSchema([]string{"server_id", "name"}, map[string]any{
			"server_id": stringProp("guild id"),
			"name":      stringProp("channel name"),
			"topic":     stringProp("channel topic"),
		}),
		Handler: createChannel,
	})

	Register(ToolSpec{
		Name:        "rename_channel",
		Description: "Rename an existing channel.",
		InputSchema: objectSchema([]string{"channel_id", "name"}, map[string]any{
			"channel_id": stringProp("channel id"),
			"name":       stringProp("new channel name"),
		}),
		Handler: renameChannel,
	})

	Register(ToolSpec{
		Name:        "set_channel_topic",
		Description: "Set a channel's topic.",
		InputSchema: objectSchema([]string{"channel_id", "topic"}, map[string]any{
			"channel_id": stringProp("channel id"),
			"topic":      stringProp("new topic text"),
		}),
		Handler: setChannelTopic,
	})

	Register(ToolSpec{
		Name:        "set_slowmode",
		Description: "Set a channel's slow-mode (rate limit) in seconds, 0 to disable.",
		InputSchema: objectSchema([]string{"channel_id", "seconds"}, map[string]any{
			"channel_id": stringProp("channel id"),
			"seconds":    intProp("seconds between messages per user, 0-21600"),
		}),
		Handler: setSlowmode,
	})
}

func createChannel(tc *Context, args map[string]any) (any, error) {
	serverID, err := argString(args, "server_id")
	if err != nil {
		return nil, err
	}
	name, err := argString(args, "name")
	if err != nil {
		return nil, err
	}
	ch, err := tc.Session.GuildChannelCreateComplex(serverID, discordgo.GuildChannelCreateData{
		Name:  name,
		Type:  discordgo.ChannelTypeGuildText,
		Topic: argStringOpt(args, "topic"),
	})
	if err != nil {
		return nil, fmt.Errorf("create_channel: %w", err)
	}
	return ch, nil
}

func renameChannel(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	name, err := argString(args, "name")
	if err != nil {
		return nil, err
	}
	ch, err := tc.Session.ChannelEditComplex(channelID, &discordgo.ChannelEdit{Name: name})
	if err != nil {
		return nil, fmt.Errorf("rename_channel: %w", err)
	}
	return ch, nil
}

func setChannelTopic(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	topic, err := argString(args, "topic")
	if err != nil {
		return nil, err
	}
	ch, err := tc.Session.ChannelEditComplex(channelID, &discordgo.ChannelEdit{Topic: topic})
	if err != nil {
		return nil, fmt.Errorf("set_channel_topic: %w", err)
	}
	return ch, nil
}

func setSlowmode(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	seconds := argIntOpt(args, "seconds", 0)
	ch, err := tc.Session.ChannelEditComplex(channelID, &discordgo.ChannelEdit{RateLimitPerUser: &seconds})
	if err != nil {
		return nil, fmt.Errorf("set_slowmode: %w", err)
	}
	return ch, nil
}
