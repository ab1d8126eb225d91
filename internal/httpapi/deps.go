package httpapi

import (
	"sync/atomic"

	"leadflow-engine/internal/config"
	"leadflow-engine/internal/events"
	"leadflow-engine/internal/jobs"
	"leadflow-engine/internal/runner"
)

type Deps struct {
	Runner  *runner.Runner
	Tracker *jobs.Tracker
	Hub     *events.Hub

	// Atomic store holding config.Config
	CfgVal *atomic.Value

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}
