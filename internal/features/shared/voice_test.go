package shared

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func guildWith(states ...*discordgo.VoiceState) *discordgo.Guild {
	return &discordgo.Guild{ID: "g1", VoiceStates: states}
}

func TestVoiceChannelOf(t *testing.T) {
	guild := guildWith(
		&discordgo.VoiceState{UserID: "bot", ChannelID: "vc1"},
		&discordgo.VoiceState{UserID: "alice", ChannelID: "vc2"},
		&discordgo.VoiceState{UserID: "bob", ChannelID: ""},
	)

	tests := []struct {
		user string
		want string
	}{
		{"bot", "vc1"},
		{"alice", "vc2"},
		{"bob", ""},
		{"carol", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := VoiceChannelOf(guild, tt.user); got != tt.want {
			t.Errorf("VoiceChannelOf(%q) = %q, expected %q", tt.user, got, tt.want)
		}
	}
	if got := VoiceChannelOf(nil, "bot"); got != "" {
		t.Errorf("VoiceChannelOf(nil) = %q", got)
	}
}

func TestHasListeners(t *testing.T) {
	bots := map[string]bool{"otherbot": true}
	isBot := func(id string) bool { return bots[id] }

	tests := []struct {
		name   string
		states []*discordgo.VoiceState
		want   bool
	}{
		{
			name:   "alone",
			states: []*discordgo.VoiceState{{UserID: "bot", ChannelID: "vc1"}},
			want:   false,
		},
		{
			name: "human in channel",
			states: []*discordgo.VoiceState{
				{UserID: "bot", ChannelID: "vc1"},
				{UserID: "alice", ChannelID: "vc1"},
			},
			want: true,
		},
		{
			name: "human elsewhere",
			states: []*discordgo.VoiceState{
				{UserID: "bot", ChannelID: "vc1"},
				{UserID: "alice", ChannelID: "vc2"},
			},
			want: false,
		},
		{
			name: "only other bots",
			states: []*discordgo.VoiceState{
				{UserID: "bot", ChannelID: "vc1"},
				{UserID: "otherbot", ChannelID: "vc1"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasListeners(guildWith(tt.states...), "vc1", "bot", isBot); got != tt.want {
				t.Errorf("HasListeners() = %v, expected %v", got, tt.want)
			}
		})
	}
}
