package commands

import (
	"github.com/bwmarrin/discordgo"
	shared "github.com/hxnx/weeve/internal/features/shared"
)

func (h *Handlers) Loop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	enable := shared.GetOptionBool(options(i), "loop")
	session := h.service.Sessions().GetOrCreate(i.GuildID)
	h.reply(s, i, session.Loop(enable))
}
