package worker

import (
	"encoding/json"
	"strings"
)

// TypePrefetchImages is the message type that carries a prefetch command.
const TypePrefetchImages = "PREFETCH_IMAGES"

// Message is the wire shape pages post to the worker.
type Message struct {
	Type string   `json:"type"`
	URLs []string `json:"urls,omitempty"`
}

// PrefetchCommand lists image URLs to warm into the cache.
type PrefetchCommand struct {
	URLs []string
}

// NewPrefetchMessage encodes a PREFETCH_IMAGES message for urls.
func NewPrefetchMessage(urls []string) ([]byte, error) {
	return json.Marshal(Message{Type: TypePrefetchImages, URLs: urls})
}

// ParseMessage decodes a posted message. ok is false for anything that is
// not a PREFETCH_IMAGES object with a non-empty urls array; such messages
// are ignored rather than rejected. Array members that are not strings, or
// are blank, are skipped.
func ParseMessage(data []byte) (cmd PrefetchCommand, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return PrefetchCommand{}, false
	}

	var typ string
	if err := json.Unmarshal(fields["type"], &typ); err != nil || typ != TypePrefetchImages {
		return PrefetchCommand{}, false
	}

	raw, present := fields["urls"]
	if !present {
		return PrefetchCommand{}, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return PrefetchCommand{}, false
	}

	for _, item := range items {
		var u string
		if err := json.Unmarshal(item, &u); err != nil {
			continue
		}
		if u = strings.TrimSpace(u); u != "" {
			cmd.URLs = append(cmd.URLs, u)
		}
	}
	if len(cmd.URLs) == 0 {
		return PrefetchCommand{}, false
	}
	return cmd, true
}
