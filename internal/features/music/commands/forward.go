package commands

import (
	"time"

	"github.com/bwmarrin/discordgo"
	shared "github.com/hxnx/weeve/internal/features/shared"
)

func (h *Handlers) Forward(s *discordgo.Session, i *discordgo.InteractionCreate) {
	session, ok := h.session(i.GuildID)
	if !ok || !session.IsPlaying() {
		h.reply(s, i, nothingPlaying)
		return
	}

	delta := forwardDelta(options(i))
	if delta < time.Second {
		h.reply(s, i, "You must skip at least one second")
		return
	}
	h.reply(s, i, session.Forward(delta))
}

func forwardDelta(opts []*discordgo.ApplicationCommandInteractionDataOption) time.Duration {
	hours := shared.GetOptionInt64(opts, "hours")
	minutes := shared.GetOptionInt64(opts, "minutes")
	seconds := shared.GetOptionInt64(opts, "seconds")
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
}
