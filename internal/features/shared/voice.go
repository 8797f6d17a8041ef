package shared

import (
	"github.com/bwmarrin/discordgo"
)

func GuildWithVoiceStates(s *discordgo.Session, guildID string) *discordgo.Guild {
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil {
			return g
		}
	}
	g, err := s.Guild(guildID)
	if err != nil {
		return nil
	}
	return g
}

// VoiceChannelOf returns the channel userID is connected to, or "".
func VoiceChannelOf(guild *discordgo.Guild, userID string) string {
	if guild == nil || userID == "" {
		return ""
	}
	for _, state := range guild.VoiceStates {
		if state.UserID == userID && state.ChannelID != "" {
			return state.ChannelID
		}
	}
	return ""
}

// HasListeners reports whether anyone other than selfID, and not a bot,
// is connected to channelID.
func HasListeners(guild *discordgo.Guild, channelID, selfID string, isBot func(userID string) bool) bool {
	if guild == nil {
		return false
	}
	for _, state := range guild.VoiceStates {
		if state.ChannelID != channelID || state.UserID == selfID {
			continue
		}
		if isBot != nil && isBot(state.UserID) {
			continue
		}
		return true
	}
	return false
}

// IsBot looks userID up in the state cache. Unknown members count as humans.
func IsBot(s *discordgo.Session, guildID string) func(string) bool {
	return func(userID string) bool {
		if s.State == nil {
			return false
		}
		m, err := s.State.Member(guildID, userID)
		if err != nil || m.User == nil {
			return false
		}
		return m.User.Bot
	}
}

func SelfID(s *discordgo.Session) string {
	if s.State != nil && s.State.User != nil {
		return s.State.User.ID
	}
	return ""
}

// CanConnect reports whether the bot may join channelID. Missing state is
// treated as allowed and left to the join itself.
func CanConnect(s *discordgo.Session, channelID string) bool {
	selfID := SelfID(s)
	if selfID == "" || s.State == nil {
		return true
	}
	perms, err := s.State.UserChannelPermissions(selfID, channelID)
	if err != nil {
		return true
	}
	return perms&discordgo.PermissionVoiceConnect != 0
}

func ChannelName(s *discordgo.Session, channelID string) string {
	if s.State != nil {
		if ch, err := s.State.Channel(channelID); err == nil {
			return ch.Name
		}
	}
	ch, err := s.Channel(channelID)
	if err != nil {
		return channelID
	}
	return ch.Name
}
