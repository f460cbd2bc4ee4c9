package scheduler

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
	"github.com/wonny/aegis-strategy/internal/pkg/jsonfile"
)

// RunState is the persisted scheduler checkpoint used to resume after a restart
type RunState struct {
	Running           bool          `json:"running"`
	EnabledStrategies []string      `json:"enabled_strategies"`
	CurrentPositions  []trade.Trade `json:"current_positions"`
}

func (s *Service) runStateLocked() *RunState {
	state := &RunState{
		Running:           s.running,
		EnabledStrategies: []string{},
	}
	for _, e := range s.entries {
		if e.cfg.Enabled {
			state.EnabledStrategies = append(state.EnabledStrategies, e.name())
		}
	}
	return state
}

// saveState checkpoints the current run-state
func (s *Service) saveState() {
	s.mu.RLock()
	state := s.runStateLocked()
	s.mu.RUnlock()

	state.CurrentPositions = s.ledger.Holds()
	s.writeState(state)
}

func (s *Service) writeState(state *RunState) {
	if s.statePath == "" {
		return
	}
	if state.CurrentPositions == nil {
		state.CurrentPositions = []trade.Trade{}
	}
	if err := jsonfile.Save(s.statePath, state); err != nil {
		log.Error().Err(err).Str("path", s.statePath).Msg("Failed to save scheduler state")
	}
}

// LoadState reads the persisted run-state. found is false when no checkpoint exists.
func (s *Service) LoadState() (*RunState, bool, error) {
	return ReadState(s.statePath)
}

// ReadState reads a run-state checkpoint without a running service
func ReadState(path string) (*RunState, bool, error) {
	var state RunState
	found, err := jsonfile.Load(path, &state)
	if err != nil || !found {
		return nil, found, err
	}
	return &state, true, nil
}

// RestoreState resumes a previously running scheduler.
// Missing or corrupt state leaves the scheduler stopped. Returns true when the loop was resumed.
func (s *Service) RestoreState(ctx context.Context) bool {
	if s.statePath == "" {
		return false
	}

	state, found, err := s.LoadState()
	if err != nil {
		log.Error().Err(err).Str("path", s.statePath).Msg("Failed to read scheduler state, staying stopped")
		return false
	}
	if !found || !state.Running {
		log.Info().Msg("No running scheduler state to restore")
		return false
	}

	enabled := make(map[string]bool, len(state.EnabledStrategies))
	for _, name := range state.EnabledStrategies {
		enabled[name] = true
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return true
	}
	var restored []string
	for _, e := range s.entries {
		e.cfg.Enabled = enabled[e.name()]
		if e.cfg.Enabled {
			restored = append(restored, e.name())
		}
	}
	if len(restored) == 0 {
		s.mu.Unlock()
		log.Warn().Strs("saved", state.EnabledStrategies).Msg("Saved strategies are no longer registered, staying stopped")
		return false
	}
	s.startLoopLocked(ctx)
	s.mu.Unlock()

	log.Info().
		Strs("strategies", restored).
		Int("positions", len(state.CurrentPositions)).
		Msg("✅ Scheduler state restored")
	return true
}

// ClearSavedState removes the checkpoint so the next startup stays stopped
func (s *Service) ClearSavedState() error {
	if s.statePath == "" {
		return nil
	}
	return jsonfile.Remove(s.statePath)
}
