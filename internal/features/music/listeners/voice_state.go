package listeners

import (
	"github.com/bwmarrin/discordgo"
	shared "github.com/hxnx/weeve/internal/features/shared"
	"github.com/hxnx/weeve/internal/music"
	"go.uber.org/zap"
)

// HandleVoiceStateUpdate expires the guild's session once everyone else has
// left the bot's channel. The next registry tick disconnects it.
func (l *Listeners) HandleVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s == nil || vs == nil || vs.GuildID == "" {
		return
	}

	botID := shared.SelfID(s)
	if botID == "" || vs.UserID == botID {
		return
	}

	guild := shared.GuildWithVoiceStates(s, vs.GuildID)
	botChannelID := shared.VoiceChannelOf(guild, botID)
	if !leftChannel(vs, botChannelID) {
		return
	}
	if shared.HasListeners(guild, botChannelID, botID, shared.IsBot(s, vs.GuildID)) {
		return
	}

	session, ok := l.service.Sessions().Lookup(vs.GuildID)
	if !ok {
		return
	}
	origin := session.TextChannel()
	l.service.Sessions().Expire(vs.GuildID)
	l.logger.Info("Voice channel emptied", zap.String("guild_id", vs.GuildID), zap.String("channel_id", botChannelID))

	if origin == "" {
		return
	}
	notice := "All users left **" + music.EscapeMarkdown(shared.ChannelName(s, botChannelID)) + "**"
	if _, err := s.ChannelMessageSend(origin, notice); err != nil {
		l.logger.Warn("Failed to send voice-empty notice", zap.String("guild_id", vs.GuildID), zap.Error(err))
	}
}

// leftChannel reports whether the update moved someone out of channelID.
// Without a previous state every update in the guild is considered.
func leftChannel(vs *discordgo.VoiceStateUpdate, channelID string) bool {
	if channelID == "" {
		return false
	}
	if vs.BeforeUpdate == nil {
		return vs.ChannelID != channelID
	}
	return vs.BeforeUpdate.ChannelID == channelID && vs.ChannelID != channelID
}
