package shared

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/weeve/internal/music"
	"go.uber.org/zap"
)

const maxButtonsPerRow = 5

var accentColor = 0xC9A0FF

// BuildComponents renders msg as a Components V2 container. Buttons are laid
// out in rows of five with the link button last.
func BuildComponents(msg music.Message) []discordgo.MessageComponent {
	inner := []discordgo.MessageComponent{
		discordgo.TextDisplay{Content: msg.Content},
	}

	buttons := make([]discordgo.MessageComponent, 0, len(msg.Buttons)+1)
	for _, b := range msg.Buttons {
		style := discordgo.PrimaryButton
		if b.Secondary {
			style = discordgo.SecondaryButton
		}
		buttons = append(buttons, discordgo.Button{
			Label:    b.Label,
			Style:    style,
			CustomID: b.ID,
		})
	}
	if msg.Link != nil {
		buttons = append(buttons, discordgo.Button{
			Label: msg.Link.Label,
			Style: discordgo.LinkButton,
			URL:   msg.Link.URL,
		})
	}

	if len(buttons) > 0 {
		divider := true
		spacing := discordgo.SeparatorSpacingSizeSmall
		inner = append(inner, discordgo.Separator{Divider: &divider, Spacing: &spacing})
		for start := 0; start < len(buttons); start += maxButtonsPerRow {
			end := min(start+maxButtonsPerRow, len(buttons))
			inner = append(inner, discordgo.ActionsRow{Components: buttons[start:end]})
		}
	}

	return []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &accentColor,
			Components:  inner,
		},
	}
}

func RespondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string, logger *zap.Logger) {
	respond(s, i, content, discordgo.MessageFlagsEphemeral, logger)
}

func Respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string, logger *zap.Logger) {
	respond(s, i, content, 0, logger)
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string, flags discordgo.MessageFlags, logger *zap.Logger) {
	if s == nil || i == nil {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Components: BuildComponents(music.Message{Content: music.Truncate(content, music.MaxMessageLength)}),
			Flags:      discordgo.MessageFlagsIsComponentsV2 | flags,
		},
	})
	if err != nil && logger != nil {
		logger.Warn("Failed to respond to interaction", zap.Error(err))
	}
}

func DeferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

func DeferUpdate(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

// Responder delivers music replies as ephemeral followups of a deferred
// interaction. When the interaction came from a component, editing the
// message that carries the component goes through the interaction response.
type Responder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func NewResponder(s *discordgo.Session, i *discordgo.Interaction) *Responder {
	return &Responder{session: s, interaction: i}
}

func (r *Responder) Send(ctx context.Context, msg music.Message) (string, error) {
	m, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Components: BuildComponents(msg),
		Flags:      discordgo.MessageFlagsEphemeral | discordgo.MessageFlagsIsComponentsV2,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (r *Responder) Edit(ctx context.Context, messageID string, msg music.Message) error {
	components := BuildComponents(msg)
	edit := &discordgo.WebhookEdit{Components: &components}

	if r.ownsMessage(messageID) {
		_, err := r.session.InteractionResponseEdit(r.interaction, edit, discordgo.WithContext(ctx))
		return err
	}
	_, err := r.session.FollowupMessageEdit(r.interaction, messageID, edit, discordgo.WithContext(ctx))
	return err
}

func (r *Responder) ownsMessage(messageID string) bool {
	return r.interaction.Type == discordgo.InteractionMessageComponent &&
		r.interaction.Message != nil &&
		r.interaction.Message.ID == messageID
}

func GetOptionString(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func GetOptionInt64(options []*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	for _, opt := range options {
		if opt.Name == name {
			return opt.IntValue()
		}
	}
	return 0
}

func GetOptionBool(options []*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	for _, opt := range options {
		if opt.Name == name {
			return opt.BoolValue()
		}
	}
	return false
}

func GetInteractionUserID(i *discordgo.InteractionCreate) string {
	if i == nil {
		return ""
	}
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
