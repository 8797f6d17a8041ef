package listeners

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	shared "github.com/hxnx/weeve/internal/features/shared"
	"github.com/hxnx/weeve/internal/music"
	"go.uber.org/zap"
)

const buttonTimeout = 2 * time.Minute

func (l *Listeners) RouteMusicComponent(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Type != discordgo.InteractionMessageComponent {
		return false
	}

	customID := i.MessageComponentData().CustomID
	if !strings.HasPrefix(customID, music.ButtonPrefix) {
		return false
	}

	l.HandleMusicComponent(s, i, customID)
	return true
}

func (l *Listeners) HandleMusicComponent(s *discordgo.Session, i *discordgo.InteractionCreate, customID string) {
	if i.GuildID == "" || i.Message == nil {
		return
	}

	if err := shared.DeferUpdate(s, i); err != nil {
		l.logger.Warn("Failed to defer button press", zap.String("guild_id", i.GuildID), zap.Error(err))
		return
	}

	guild := shared.GuildWithVoiceStates(s, i.GuildID)
	press := music.ButtonPress{
		GuildID:      i.GuildID,
		MessageID:    i.Message.ID,
		ButtonID:     customID,
		VoiceChannel: shared.VoiceChannelOf(guild, shared.GetInteractionUserID(i)),
		TextChannel:  i.ChannelID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), buttonTimeout)
	defer cancel()

	l.service.HandleButton(ctx, press, shared.NewResponder(s, i.Interaction))
}
