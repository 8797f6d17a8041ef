package listeners

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// HandleGuildDelete drops the session of a guild the bot was removed from.
// Outages also arrive as GuildDelete and are ignored.
func (l *Listeners) HandleGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g == nil || g.Guild == nil || g.Unavailable {
		return
	}
	if l.service.Sessions().Remove(g.ID) {
		l.logger.Info("Removed session for departed guild", zap.String("guild_id", g.ID))
	}
}
