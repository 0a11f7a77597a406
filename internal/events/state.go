package events

// State is the per-run dedup state of the detector. Create one per stream
// with NewState and drop it when the stream ends; it is not safe for
// concurrent use.
type State struct {
	startedTools   map[string]struct{}
	completedTools map[string]struct{}
	currentAgent   string
}

// NewState returns an empty per-run state.
func NewState() *State {
	return &State{
		startedTools:   make(map[string]struct{}),
		completedTools: make(map[string]struct{}),
	}
}

// Started reports whether a start was already emitted for the key.
func (s *State) Started(key string) bool {
	_, ok := s.startedTools[key]
	return ok
}

// Completed reports whether a completion was already emitted for the key.
func (s *State) Completed(key string) bool {
	_, ok := s.completedTools[key]
	return ok
}

// StartedCount returns how many distinct tools have started.
func (s *State) StartedCount() int {
	return len(s.startedTools)
}

// CurrentAgent returns the agent that most recently received control, or ""
// while the supervisor is in charge.
func (s *State) CurrentAgent() string {
	return s.currentAgent
}

func (s *State) markStarted(key string) bool {
	if s.Started(key) {
		return false
	}
	s.startedTools[key] = struct{}{}
	return true
}

func (s *State) markCompleted(key string) bool {
	if s.Completed(key) {
		return false
	}
	s.completedTools[key] = struct{}{}
	return true
}

// transferTo records the agent that received control.
func (s *State) transferTo(agent string) {
	s.currentAgent = agent
}
