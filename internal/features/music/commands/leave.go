package commands

import (
	"github.com/bwmarrin/discordgo"
	shared "github.com/hxnx/weeve/internal/features/shared"
	"github.com/hxnx/weeve/internal/music"
	"go.uber.org/zap"
)

func (h *Handlers) Leave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guild := shared.GuildWithVoiceStates(s, i.GuildID)
	channelID := shared.VoiceChannelOf(guild, shared.SelfID(s))
	if channelID == "" {
		h.reply(s, i, h.botName+" is not in a channel")
		return
	}

	h.reply(s, i, "Left **"+music.EscapeMarkdown(shared.ChannelName(s, channelID))+"**")
	if err := h.service.Sessions().Leave(i.GuildID); err != nil {
		h.logger.Warn("Failed to leave voice channel", zap.String("guild_id", i.GuildID), zap.Error(err))
	}
}
