package events

import (
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/toolname"
)

var (
	transferToPattern   = regexp.MustCompile(`^transfer_to_(.+)$`)
	transferredPattern  = regexp.MustCompile(`Successfully transferred to ([A-Za-z0-9_\-]+)`)
	textCompletePattern = regexp.MustCompile(`(?i)\b(?:completed|finished)\s+([A-Za-z0-9_\-]+)`)
)

// toolNodes are graph nodes that execute tools.
var toolNodes = map[string]bool{
	"tools":          true,
	"tool_node":      true,
	"tool_execution": true,
	"action":         true,
}

// Paths inspected for a tool identifier inside node data.
var (
	toolNodePaths  = []string{"name", "tool_name", "tool", "tool_calls.0.name", `messages.#(type=="tool").name`}
	otherNodePaths = []string{"tool_name", "tool"}
)

// Detector derives synthetic tool_update and agent_transfer events from raw
// runtime events. It is stateless; per-run state lives in State.
type Detector struct {
	mapper *toolname.Mapper
}

// NewDetector creates a detector that consults mapper for filtering.
func NewDetector(mapper *toolname.Mapper) *Detector {
	return &Detector{mapper: mapper}
}

// Detect returns at most one synthetic event for raw. Structural signals in
// node updates are tried first, message content second. Malformed payloads
// never fail the caller; they just yield no event.
func (d *Detector) Detect(raw domain.RawEvent, state *State) (ev domain.WireEvent, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ev, ok = domain.WireEvent{}, false
		}
	}()

	if state == nil || len(raw.Data) == 0 || !gjson.ValidBytes(raw.Data) {
		return domain.WireEvent{}, false
	}
	data := gjson.ParseBytes(raw.Data)

	switch raw.Event {
	case RawUpdates:
		if data.IsObject() {
			return d.detectNodeUpdate(data, state)
		}
	case RawMessages, RawMessagesComplete:
		if data.IsArray() {
			return d.detectCompletion(data, state)
		}
	}
	return domain.WireEvent{}, false
}

func (d *Detector) detectNodeUpdate(data gjson.Result, state *State) (domain.WireEvent, bool) {
	nodeName, nodeData, ok := firstEntry(data)
	if !ok || nodeName == RawInterrupt {
		return domain.WireEvent{}, false
	}

	paths := otherNodePaths
	if toolNodes[nodeName] {
		paths = toolNodePaths
	}
	if id := firstString(nodeData, paths); id != "" {
		return d.toolStart(id, state)
	}

	if toolname.IsAgentNode(nodeName) {
		return d.agentTransfer(nodeName, state)
	}
	return domain.WireEvent{}, false
}

func (d *Detector) toolStart(id string, state *State) (domain.WireEvent, bool) {
	if m := transferToPattern.FindStringSubmatch(id); m != nil {
		return d.agentTransfer(m[1], state)
	}

	key := toolname.NormalizeKey(id)
	if key == toolname.SentinelTransferBack {
		state.transferTo("")
		return domain.WireEvent{}, false
	}
	if d.mapper.ShouldFilterTool(id) {
		return domain.WireEvent{}, false
	}
	if !state.markStarted(key) {
		return domain.WireEvent{}, false
	}
	return domain.ToolUpdate(key, domain.ToolUpdateStart), true
}

// detectCompletion scans message items for success markers, transfer
// confirmations and free-text completion notes, in that order per item.
func (d *Detector) detectCompletion(items gjson.Result, state *State) (domain.WireEvent, bool) {
	var (
		out   domain.WireEvent
		found bool
	)
	items.ForEach(func(_, item gjson.Result) bool {
		out, found = d.completionFromItem(item, state)
		return !found
	})
	return out, found
}

func (d *Detector) completionFromItem(item gjson.Result, state *State) (domain.WireEvent, bool) {
	if !item.IsObject() {
		return domain.WireEvent{}, false
	}
	name := item.Get("name").String()

	if item.Get("type").String() == "tool" && item.Get("status").String() == "success" && name != "" {
		if !transferToPattern.MatchString(name) {
			return d.toolComplete(name, state)
		}
	}

	text := messageText(item)
	if text == "" {
		return domain.WireEvent{}, false
	}
	if m := transferredPattern.FindStringSubmatch(text); m != nil {
		return d.agentTransfer(m[1], state)
	}
	if m := textCompletePattern.FindStringSubmatch(text); m != nil {
		key := toolname.NormalizeKey(m[1])
		if key == toolname.SentinelTransferBack || !state.Started(key) {
			return domain.WireEvent{}, false
		}
		if state.markCompleted(key) {
			return domain.ToolUpdate(key, domain.ToolUpdateComplete), true
		}
	}
	return domain.WireEvent{}, false
}

func (d *Detector) toolComplete(name string, state *State) (domain.WireEvent, bool) {
	key := toolname.NormalizeKey(name)
	if key != toolname.SentinelTransferBack && d.mapper.ShouldFilterTool(name) {
		return domain.WireEvent{}, false
	}
	if !state.markCompleted(key) {
		return domain.WireEvent{}, false
	}
	if key == toolname.SentinelTransferBack {
		state.transferTo("")
	}
	return domain.ToolUpdate(key, domain.ToolUpdateComplete), true
}

// agentTransfer reports every hand-off it observes; the state only remembers
// the latest agent for labelling.
func (d *Detector) agentTransfer(agent string, state *State) (domain.WireEvent, bool) {
	state.transferTo(agent)
	return domain.AgentTransfer(agent), true
}

func firstString(data gjson.Result, paths []string) string {
	if !data.IsObject() {
		return ""
	}
	for _, p := range paths {
		if v := data.Get(p); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
