package commands

import (
	"github.com/bwmarrin/discordgo"
)

func (h *Handlers) Queue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	session, ok := h.session(i.GuildID)
	if !ok {
		h.reply(s, i, "The queue is empty")
		return
	}
	h.reply(s, i, session.RenderQueueListing())
}
