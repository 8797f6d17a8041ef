package bot

import (
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/weeve/internal/music"
	"github.com/hxnx/weeve/internal/voice"
	"go.uber.org/zap"
)

// platform is the discordgo side of the music core. Each guild is served by
// the shard that owns it.
type platform struct {
	sessions   []*discordgo.Session
	streams    voice.StreamResolver
	transcoder voice.Transcoder
	logger     *zap.Logger
}

func newPlatform(sessions []*discordgo.Session, streams voice.StreamResolver, transcoder voice.Transcoder, logger *zap.Logger) *platform {
	return &platform{
		sessions:   sessions,
		streams:    streams,
		transcoder: transcoder,
		logger:     logger.Named("platform"),
	}
}

// shardFor maps a guild to its shard the way the gateway does.
func shardFor(guildID string, shards int) int {
	if shards <= 1 {
		return 0
	}
	id, err := strconv.ParseUint(guildID, 10, 64)
	if err != nil {
		return 0
	}
	return int((id >> 22) % uint64(shards))
}

func (p *platform) session(guildID string) *discordgo.Session {
	return p.sessions[shardFor(guildID, len(p.sessions))]
}

func (p *platform) NewPlayer(guildID string, onEnd func(music.QueueEntry, music.EndReason, error)) music.Player {
	return voice.NewPlayer(guildID, voice.PlayerConfig{
		Dialer:     voice.DiscordDialer{Session: p.session(guildID)},
		Streams:    p.streams,
		Transcoder: p.transcoder,
		Logger:     p.logger,
	}, onEnd)
}

func (p *platform) CloseAudioConnection(guildID string) error {
	s := p.session(guildID)
	if vc := voice.Connection(s, guildID); vc != nil {
		return vc.Disconnect()
	}
	// Not joined by this process, e.g. left over from a restart.
	return s.ChannelVoiceJoinManual(guildID, "", false, true)
}

// SendMessage goes over REST, which every shard can reach.
func (p *platform) SendMessage(channelID, content string) error {
	_, err := p.sessions[0].ChannelMessageSend(channelID, content)
	return err
}
