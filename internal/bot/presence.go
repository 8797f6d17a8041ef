package bot

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const presenceUpdateInterval = 60 * time.Second

func presenceStatus(shardID, guilds, shards int) string {
	if shards <= 1 {
		return fmt.Sprintf("music in %d servers", guilds)
	}
	return fmt.Sprintf("music in %d servers · shard %d/%d", guilds, shardID+1, shards)
}

func (b *Bot) updatePresence() {
	for _, s := range b.sessions {
		guildCount := 0
		if s.State != nil {
			s.State.RLock()
			guildCount = len(s.State.Guilds)
			s.State.RUnlock()
		}

		status := presenceStatus(s.ShardID, guildCount, len(b.sessions))
		if err := s.UpdateGameStatus(0, status); err != nil {
			b.logger.Debug("Failed to update presence", zap.Int("shard", s.ShardID), zap.Error(err))
		}
	}
}
