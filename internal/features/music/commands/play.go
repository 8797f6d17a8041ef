package commands

import (
	"context"

	"github.com/bwmarrin/discordgo"
	shared "github.com/hxnx/weeve/internal/features/shared"
	"github.com/hxnx/weeve/internal/music"
	"go.uber.org/zap"
)

func (h *Handlers) Play(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := options(i)

	req := music.Request{
		GuildID:     i.GuildID,
		Query:       shared.GetOptionString(opts, "query"),
		PlayNext:    shared.GetOptionBool(opts, "next"),
		TextChannel: i.ChannelID,
	}

	if name := shared.GetOptionString(opts, "source"); name != "" {
		src, ok := h.service.Sources().Lookup(name)
		if !ok {
			h.replyEphemeral(s, i, "Unknown source `"+name+"`")
			return
		}
		req.Source = src
	}

	guild := shared.GuildWithVoiceStates(s, i.GuildID)
	req.VoiceChannel = shared.VoiceChannelOf(guild, shared.GetInteractionUserID(i))
	if req.VoiceChannel == "" {
		h.replyEphemeral(s, i, music.JoinVoiceMessage)
		return
	}
	if !shared.CanConnect(s, req.VoiceChannel) {
		h.replyEphemeral(s, i, h.botName+" needs permission to join the call")
		return
	}

	if err := shared.DeferEphemeral(s, i); err != nil {
		h.logger.Warn("Failed to defer play", zap.String("guild_id", i.GuildID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	h.service.Resolve(ctx, req, shared.NewResponder(s, i.Interaction))
}
