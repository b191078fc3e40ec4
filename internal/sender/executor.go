package sender

import (
	"chat-monitor/internal/engine"
	"chat-monitor/internal/logger"
)

// Broadcaster pushes dispatch actions to connected dashboards.
type Broadcaster interface {
	DispatchAction(action *engine.ActionDescriptor)
}

// LogExecutor is the default send executor. Real chat-platform delivery
// belongs to an external collaborator; this one logs the action and hands
// it to the dashboard broadcaster.
type LogExecutor struct {
	Broadcaster Broadcaster
}

func NewLogExecutor(b Broadcaster) *LogExecutor {
	return &LogExecutor{Broadcaster: b}
}

func (e *LogExecutor) Execute(action *engine.ActionDescriptor) error {
	logger.Sugar.Infow("dispatching action",
		"action", action.ID,
		"rule", action.RuleName,
		"account", action.AccountID,
		"group", action.GroupID,
		"response_type", action.ResponseType,
	)
	if e.Broadcaster != nil {
		e.Broadcaster.DispatchAction(action)
	}
	return nil
}
