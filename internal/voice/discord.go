package voice

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/weeve/internal/music"
)

// DiscordDialer joins voice channels through a gateway session.
type DiscordDialer struct {
	Session *discordgo.Session
}

func (d DiscordDialer) Dial(_ context.Context, guildID, channelID string) (Conn, error) {
	if d.Session == nil {
		return nil, fmt.Errorf("discord session is nil")
	}
	if channelID == "" {
		return nil, music.ErrNoVoiceChannel
	}

	if vc := Connection(d.Session, guildID); vc != nil && vc.ChannelID == channelID && vc.Ready {
		return discordConn{vc: vc}, nil
	}

	vc, err := d.Session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	return discordConn{vc: vc}, nil
}

// Connection returns the session's voice connection in guildID, if any.
func Connection(s *discordgo.Session, guildID string) *discordgo.VoiceConnection {
	s.RLock()
	defer s.RUnlock()
	return s.VoiceConnections[guildID]
}

type discordConn struct {
	vc *discordgo.VoiceConnection
}

func (c discordConn) Frames() chan<- []byte {
	return c.vc.OpusSend
}

func (c discordConn) Speaking(speaking bool) {
	if c.vc == nil || !c.vc.Ready {
		return
	}
	_ = c.vc.Speaking(speaking)
}

// URLResolver looks up a playable URL for a track on a given source.
type URLResolver interface {
	StreamURL(ctx context.Context, src *music.Source, uri string) (string, error)
}

type sourceStreams struct {
	resolver URLResolver
	sources  *music.SourceRegistry
}

// NewStreamResolver resolves stream URLs with the source serving each URI,
// so gated sources get their credentials.
func NewStreamResolver(resolver URLResolver, sources *music.SourceRegistry) StreamResolver {
	return sourceStreams{resolver: resolver, sources: sources}
}

func (s sourceStreams) StreamURL(ctx context.Context, uri string) (string, error) {
	var src *music.Source
	if s.sources != nil {
		src, _ = s.sources.ForURI(uri)
	}
	return s.resolver.StreamURL(ctx, src, uri)
}
