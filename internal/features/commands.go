package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	musiccmd "github.com/hxnx/weeve/internal/features/music/commands"
	musiclisteners "github.com/hxnx/weeve/internal/features/music/listeners"
	shared "github.com/hxnx/weeve/internal/features/shared"
	"github.com/hxnx/weeve/internal/metrics"
	"github.com/hxnx/weeve/internal/music"
	"go.uber.org/zap"
)

const maxSkipAmount = 250

var guildOnly = []discordgo.InteractionContextType{discordgo.InteractionContextGuild}

// CommandList builds the slash command table. The source choices follow the
// registered sources.
func CommandList(sources []*music.Source) []*discordgo.ApplicationCommand {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(sources))
	for _, src := range sources {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  src.FancyName,
			Value: src.Name,
		})
	}

	minOne := 1.0
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song",
			Contexts:    &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "Search term or link",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "source",
					Description: "Audio source",
					Choices:     choices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "next",
					Description: "Plays this track next",
				},
			},
		},
		{
			Name:        "skip",
			Description: "Skip the song",
			Contexts:    &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Number of songs to skip",
					MinValue:    &minOne,
					MaxValue:    maxSkipAmount,
				},
			},
		},
		{
			Name:        "forward",
			Description: "Fast-forward the song",
			Contexts:    &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "hours",
					Description: "Number of hours to skip",
					MinValue:    &minOne,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "minutes",
					Description: "Number of minutes to skip",
					MinValue:    &minOne,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "seconds",
					Description: "Number of seconds to skip",
					MinValue:    &minOne,
				},
			},
		},
		{
			Name:        "loop",
			Description: "Control looping",
			Contexts:    &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "loop",
					Description: "Whether to turn looping on or off",
					Required:    true,
				},
			},
		},
		{
			Name:        "queue",
			Description: "See queued songs",
			Contexts:    &guildOnly,
		},
		{
			Name:        "stop",
			Description: "Stops playback",
			Contexts:    &guildOnly,
		},
		{
			Name:        "leave",
			Description: "Leaves the call",
			Contexts:    &guildOnly,
		},
	}
}

func RegisterCommands(s *discordgo.Session, appID, guildID string, list []*discordgo.ApplicationCommand, logger *zap.Logger) ([]*discordgo.ApplicationCommand, error) {
	scope := "global"
	if guildID != "" {
		scope = fmt.Sprintf("guild:%s", guildID)
	}

	logger.Info("Registering commands", zap.Int("count", len(list)), zap.String("scope", scope))

	cmds, err := s.ApplicationCommandBulkOverwrite(appID, guildID, list)
	if err != nil {
		return nil, fmt.Errorf("cannot bulk overwrite commands: %w", err)
	}
	return cmds, nil
}

type handlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

// Router dispatches gateway events to the music commands and listeners.
type Router struct {
	handlers  map[string]handlerFunc
	listeners *musiclisteners.Listeners
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewRouter(service *music.Service, botName string, m *metrics.Metrics, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := musiccmd.New(service, botName, logger)
	return &Router{
		handlers: map[string]handlerFunc{
			"play":    h.Play,
			"skip":    h.Skip,
			"forward": h.Forward,
			"loop":    h.Loop,
			"queue":   h.Queue,
			"stop":    h.Stop,
			"leave":   h.Leave,
		},
		listeners: musiclisteners.New(service, logger),
		metrics:   m,
		logger:    logger.Named("router"),
	}
}

func (r *Router) AddHandlers(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		r.HandleInteraction(s, i)
	})
	s.AddHandler(r.listeners.HandleVoiceStateUpdate)
	s.AddHandler(r.listeners.HandleGuildDelete)
}

func (r *Router) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	defer r.recoverInteraction(s, i)

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		handler, ok := r.handlers[name]
		if !ok {
			return
		}
		r.metrics.CommandHandled(name)
		handler(s, i)
	case discordgo.InteractionMessageComponent:
		r.listeners.RouteMusicComponent(s, i)
	}
}

func (r *Router) recoverInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	rec := recover()
	if rec == nil {
		return
	}

	r.logger.Error("Interaction handler panicked",
		zap.String("guild_id", i.GuildID),
		zap.String("interaction_id", i.ID),
		zap.Any("panic", rec),
		zap.Stack("stack"))

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Components: shared.BuildComponents(music.Message{Content: music.InternalErrorMessage}),
			Flags:      discordgo.MessageFlagsIsComponentsV2 | discordgo.MessageFlagsEphemeral,
		},
	})
	if err == nil {
		return
	}

	// Already acknowledged, so the error goes out as a followup.
	if _, err := shared.NewResponder(s, i.Interaction).Send(context.Background(), music.Message{Content: music.InternalErrorMessage}); err != nil {
		r.logger.Warn("Failed to report internal error", zap.Error(err))
	}
}
