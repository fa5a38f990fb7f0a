package notify

import (
	"context"

	"gridwarden/internal/core"
)

// LogChannel writes alerts through the structured logger, the always-on
// fallback channel every worker registers.
type LogChannel struct {
	logger core.ILogger
}

// NewLogChannel builds a LogChannel.
func NewLogChannel(logger core.ILogger) *LogChannel {
	return &LogChannel{logger: logger.WithField("component", "notify_log_channel")}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, alert Payload) error {
	fields := []core.Field{
		core.F("level", alert.Level),
		core.F("strategy_id", alert.StrategyID),
		core.F("title", alert.Title),
	}
	for k, v := range alert.Fields {
		fields = append(fields, core.F(k, v))
	}

	switch alert.Level {
	case Critical, Error:
		c.logger.Error(alert.Message, nil, fields...)
	case Warning:
		c.logger.Warn(alert.Message, fields...)
	default:
		c.logger.Info(alert.Message, fields...)
	}
	return nil
}

var _ Channel = (*LogChannel)(nil)
