package commands

import (
	"time"

	"github.com/bwmarrin/discordgo"
	shared "github.com/hxnx/weeve/internal/features/shared"
	"github.com/hxnx/weeve/internal/music"
	"go.uber.org/zap"
)

const resolveTimeout = 2 * time.Minute

// Handlers serves the music slash commands for every guild.
type Handlers struct {
	service *music.Service
	botName string
	logger  *zap.Logger
}

func New(service *music.Service, botName string, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		service: service,
		botName: botName,
		logger:  logger.Named("commands"),
	}
}

func (h *Handlers) session(guildID string) (*music.SessionQueue, bool) {
	return h.service.Sessions().Lookup(guildID)
}

func (h *Handlers) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	shared.Respond(s, i, content, h.logger)
}

func (h *Handlers) replyEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	shared.RespondEphemeral(s, i, content, h.logger)
}

func options(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	return i.ApplicationCommandData().Options
}
