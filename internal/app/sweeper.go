package app

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// sweeper periodically drops expired records from the in-process cache.
type sweeper struct {
	cron *cron.Cron
}

type expirer interface {
	Sweep() int
}

func newSweeper(spec string, store expirer, logger zerolog.Logger) (*sweeper, error) {
	log := logger.With().Str("component", "cache_sweeper").Logger()
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{log})))

	_, err := c.AddFunc(spec, func() {
		if removed := store.Sweep(); removed > 0 {
			log.Debug().Int("removed", removed).Msg("expired cache records swept")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cache sweep %q: %w", spec, err)
	}
	return &sweeper{cron: c}, nil
}

func (s *sweeper) Start() { s.cron.Start() }

func (s *sweeper) Stop() { <-s.cron.Stop().Done() }

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
