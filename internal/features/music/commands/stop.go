package commands

import (
	"github.com/bwmarrin/discordgo"
)

func (h *Handlers) Stop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if session, ok := h.session(i.GuildID); ok {
		session.Reset()
	}
	h.reply(s, i, "Stopped playback")
}
