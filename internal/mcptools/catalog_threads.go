package mcptools

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

func init() {
	Register(ToolSpec{
		Name:        "create_thread",
		Description: "Start a thread on a channel.",
		InputSchema: objectSchema([]string{"channel_id", "name"}, map[string]any{
			"channel_id": stringProp("parent channel id"),
			"name":       stringProp("thread name"),
			"private":    boolProp("create a private thread"),
		}),
		Handler: createThread,
	})

	Register(ToolSpec{
		Name:        "create_forum_post",
		Description: "Start a new post (thread + first message) in a forum channel.",
		InputSchema: objectSchema([]string{"channel_id", "name", "content"}, map[string]any{
			"channel_id": stringProp("forum channel id"),
			"name":       stringProp("post title"),
			"content":    stringProp("first message body"),
		}),
		Handler: createForumPost,
	})

	Register(ToolSpec{
		Name:        "archive_thread",
		Description: "Archive or unarchive a thread.",
		InputSchema: objectSchema([]string{"channel_id"}, map[string]any{
			"channel_id": stringProp("thread id"),
			"unarchive":  boolProp("unarchive instead of archive"),
		}),
		Handler: archiveThread,
	})

	Register(ToolSpec{
		Name:        "join_thread",
		Description: "Join an existing thread so this Entity receives its messages.",
		InputSchema: objectSchema([]string{"channel_id"}, map[string]any{
			"channel_id": stringProp("thread id"),
		}),
		Handler: joinThread,
	})
}

func createThread(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	name, err := argString(args, "name")
	if err != nil {
		return nil, err
	}
	typ := discordgo.ChannelTypeGuildPublicThread
	if argBoolOpt(args, "private", false) {
		typ = discordgo.ChannelTypeGuildPrivateThread
	}
	thread, err := tc.Session.ThreadStartComplex(channelID, &discordgo.ThreadStart{
		Name:                name,
		Type:                typ,
		AutoArchiveDuration: 1440,
	})
	if err != nil {
		return nil, fmt.Errorf("create_thread: %w", err)
	}
	return thread, nil
}

func createForumPost(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	name, err := argString(args, "name")
	if err != nil {
		return nil, err
	}
	content, err := argString(args, "content")
	if err != nil {
		return nil, err
	}
	thread, err := tc.Session.ForumThreadStartComplex(channelID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: 1440,
	}, &discordgo.MessageSend{Content: content})
	if err != nil {
		return nil, fmt.Errorf("create_forum_post: %w", err)
	}
	return thread, nil
}

func archiveThread(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	archived := !argBoolOpt(args, "unarchive", false)
	ch, err := tc.Session.ChannelEditComplex(channelID, &discordgo.ChannelEdit{Archived: &archived})
	if err != nil {
		return nil, fmt.Errorf("archive_thread: %w", err)
	}
	return ch, nil
}

func joinThread(tc *Context, args map[string]any) (any, error) {
	channelID, err := argString(args, "channel_id")
	if err != nil {
		return nil, err
	}
	if err := tc.Session.ThreadJoin(channelID); err != nil {
		return nil, fmt.Errorf("join_thread: %w", err)
	}
	return map[string]any{"joined": true}, nil
}
