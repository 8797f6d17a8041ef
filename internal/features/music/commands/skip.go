package commands

import (
	"github.com/bwmarrin/discordgo"
	shared "github.com/hxnx/weeve/internal/features/shared"
)

const nothingPlaying = "Nothing is playing"

func (h *Handlers) Skip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	amount := int(shared.GetOptionInt64(options(i), "amount"))
	if amount < 1 {
		amount = 1
	}

	session, ok := h.session(i.GuildID)
	if !ok {
		h.reply(s, i, nothingPlaying)
		return
	}
	h.reply(s, i, session.SkipTracks(amount))
}
