// Package events turns raw runtime events into typed wire events and derives
// tool activity from them.
package events

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/xiaot623/gogo/streamer/internal/domain"
)

// Raw event names produced by the upstream runtime.
const (
	RawInterrupt        = "__interrupt__"
	RawUpdates          = "updates"
	RawMessages         = "messages"
	RawMessagesComplete = "messages/complete"
	RawMessagesPartial  = "messages/partial"
	RawMessagesMetadata = "messages/metadata"
	RawMetadata         = "metadata"
	RawError            = "error"

	messagesTuplePrefix = "messages-tuple/"
	supervisorName      = "Clera"
)

// GenericErrorMessage is the only error text ever sent to clients.
const GenericErrorMessage = "Something went wrong while processing your request. Please try again."

// Classify maps one raw event to a wire event. Rules are evaluated in order
// and the first match wins; anything unrecognized passes through as metadata.
// Only a completely empty event yields nothing.
func Classify(raw domain.RawEvent) (domain.WireEvent, bool) {
	if raw.Event == "" && len(raw.Data) == 0 {
		return domain.WireEvent{}, false
	}

	valid := len(raw.Data) == 0 || gjson.ValidBytes(raw.Data)
	if raw.Event == RawInterrupt {
		if !valid {
			return domain.WireEvent{Type: domain.EventTypeInterrupt, Data: string(raw.Data), StreamMode: raw.Event}, true
		}
		return interruptEvent(raw, raw.Data), true
	}
	if !valid {
		return domain.WireEvent{
			Type:       domain.EventTypeMetadata,
			Data:       string(raw.Data),
			StreamMode: raw.Event,
		}, true
	}

	data := gjson.ParseBytes(raw.Data)
	switch {
	case data.IsObject() && data.Get(RawInterrupt).Exists():
		return interruptEvent(raw, rawBytes(data.Get(RawInterrupt))), true

	case raw.Event == RawUpdates && data.IsObject():
		name, value, ok := firstEntry(data)
		if ok {
			return domain.WireEvent{
				Type:       domain.EventTypeNodeUpdate,
				Data:       rawBytes(value),
				NodeName:   name,
				StreamMode: raw.Event,
			}, true
		}

	case raw.Event == RawMessages && data.IsArray():
		if complete := supervisorMessages(data); len(complete) > 0 {
			return domain.WireEvent{
				Type:       domain.EventTypeMessagesComplete,
				Data:       joinArray(complete),
				StreamMode: raw.Event,
			}, true
		}
		return domain.WireEvent{
			Type:       domain.EventTypeMessagesMetadata,
			Data:       raw.Data,
			StreamMode: raw.Event,
		}, true

	case raw.Event == RawMessagesComplete:
		eventType := domain.EventTypeMetadata
		if data.IsArray() && hasMessageShape(data) {
			eventType = domain.EventTypeMessagesComplete
		}
		return domain.WireEvent{Type: eventType, Data: payload(raw), StreamMode: raw.Event}, true

	case (raw.Event == RawMessagesPartial || strings.HasPrefix(raw.Event, messagesTuplePrefix)) && data.IsArray():
		return domain.WireEvent{
			Type:       domain.EventTypeMessageToken,
			Data:       raw.Data,
			StreamMode: raw.Event,
		}, true

	case raw.Event == RawMetadata || raw.Event == RawMessagesMetadata:
		return domain.WireEvent{Type: domain.EventTypeMetadata, Data: payload(raw), StreamMode: raw.Event}, true

	case raw.Event == RawError:
		return domain.ErrorEvent(GenericErrorMessage), true
	}

	return domain.WireEvent{Type: domain.EventTypeMetadata, Data: payload(raw), StreamMode: raw.Event}, true
}

func interruptEvent(raw domain.RawEvent, value json.RawMessage) domain.WireEvent {
	return domain.WireEvent{
		Type:       domain.EventTypeInterrupt,
		Data:       payload(raw),
		Interrupt:  value,
		StreamMode: raw.Event,
	}
}

// firstEntry returns the first key of an object in document order.
func firstEntry(obj gjson.Result) (string, gjson.Result, bool) {
	var (
		name  string
		value gjson.Result
		found bool
	)
	obj.ForEach(func(key, v gjson.Result) bool {
		name, value, found = key.String(), v, true
		return false
	})
	return name, value, found
}

// supervisorMessages keeps finished AI messages authored by the supervisor.
func supervisorMessages(arr gjson.Result) []gjson.Result {
	var out []gjson.Result
	arr.ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() == "ai" &&
			item.Get("name").String() == supervisorName &&
			messageText(item) != "" {
			out = append(out, item)
		}
		return true
	})
	return out
}

func hasMessageShape(arr gjson.Result) bool {
	found := false
	arr.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() && (item.Get("type").Exists() || item.Get("content").Exists() || item.Get("role").Exists()) {
			found = true
			return false
		}
		return true
	})
	return found
}

// messageText flattens string or block-list message content.
func messageText(item gjson.Result) string {
	content := item.Get("content")
	if content.IsArray() {
		var parts []string
		content.ForEach(func(_, block gjson.Result) bool {
			if block.Type == gjson.String {
				parts = append(parts, block.String())
			} else if text := block.Get("text"); text.Exists() {
				parts = append(parts, text.String())
			}
			return true
		})
		return strings.TrimSpace(strings.Join(parts, ""))
	}
	if content.Type == gjson.String {
		return strings.TrimSpace(content.String())
	}
	return ""
}

func joinArray(items []gjson.Result) json.RawMessage {
	raws := make([]string, len(items))
	for i, item := range items {
		raws[i] = item.Raw
	}
	return json.RawMessage("[" + strings.Join(raws, ",") + "]")
}

func rawBytes(r gjson.Result) json.RawMessage {
	if r.Raw == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(r.Raw)
}

func payload(raw domain.RawEvent) json.RawMessage {
	if len(raw.Data) == 0 {
		return json.RawMessage("null")
	}
	return raw.Data
}
