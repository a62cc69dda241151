package gateway

import (
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sotto-ai/sotto/pkg/audio"
	"github.com/sotto-ai/sotto/pkg/realtime"
	"github.com/sotto-ai/sotto/pkg/types"
)

// previousItemHead is the previous_item_id sentinel that places an item at
// the head of the conversation.
const previousItemHead = "root"

// Conversation is the per-session item log. It owns item identity and
// ordering: ids are unique, a function_call_output must answer a call that
// precedes it, and the projection into model messages is a pure read.
//
// Not safe for concurrent use; the session actor owns it.
type Conversation struct {
	items []*realtime.Item
	index map[string]int
	log   *slog.Logger
}

// NewConversation returns an empty log.
func NewConversation(log *slog.Logger) *Conversation {
	if log == nil {
		log = slog.Default()
	}
	return &Conversation{index: make(map[string]int), log: log}
}

// Append adds an item at the tail. It returns the id of the item that now
// precedes it, empty when the log was empty.
func (c *Conversation) Append(it *realtime.Item) (string, error) {
	return c.Insert(it, "")
}

// Insert places an item by previousItemID: empty appends at the tail, "root"
// inserts at the head, any other value inserts after that item. The item is
// assigned an id when it has none. It returns the id of the item preceding
// the inserted one.
func (c *Conversation) Insert(it *realtime.Item, previousItemID string) (string, error) {
	if it.ID == "" {
		it.ID = NewItemID()
	}
	if _, ok := c.index[it.ID]; ok {
		return "", realtime.Errorf(realtime.ErrInvalidItem, "item %q already exists", it.ID).WithParam("item.id")
	}
	pos, prev, err := c.insertionPoint(previousItemID)
	if err != nil {
		return "", err
	}
	if it.Type == realtime.ItemTypeFunctionCallOutput && !c.callPrecedes(it.CallID, pos) {
		return "", realtime.Errorf(realtime.ErrInvalidItem,
			"function_call_output references unknown call_id %q", it.CallID).WithParam("item.call_id")
	}
	c.items = slices.Insert(c.items, pos, it)
	c.reindex(pos)
	return prev, nil
}

func (c *Conversation) insertionPoint(previousItemID string) (pos int, prev string, err error) {
	switch previousItemID {
	case "":
		pos = len(c.items)
		if pos > 0 {
			prev = c.items[pos-1].ID
		}
	case previousItemHead:
		pos = 0
	default:
		i, ok := c.index[previousItemID]
		if !ok {
			return 0, "", realtime.Errorf(realtime.ErrItemNotFound,
				"previous_item_id %q does not exist", previousItemID).WithParam("previous_item_id")
		}
		pos, prev = i+1, previousItemID
	}
	return pos, prev, nil
}

func (c *Conversation) callPrecedes(callID string, pos int) bool {
	for _, it := range c.items[:pos] {
		if it.Type == realtime.ItemTypeFunctionCall && it.CallID == callID {
			return true
		}
	}
	return false
}

func (c *Conversation) reindex(from int) {
	for i := from; i < len(c.items); i++ {
		c.index[c.items[i].ID] = i
	}
}

// Get returns the item with the given id.
func (c *Conversation) Get(id string) (*realtime.Item, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.items[i], true
}

// Delete removes an item and returns it. The caller enforces the
// active-response guard before calling.
func (c *Conversation) Delete(id string) (*realtime.Item, error) {
	i, ok := c.index[id]
	if !ok {
		return nil, realtime.Errorf(realtime.ErrItemNotFound, "item %q does not exist", id)
	}
	it := c.items[i]
	c.items = slices.Delete(c.items, i, i+1)
	delete(c.index, id)
	c.reindex(i)
	return it, nil
}

// Truncate cuts an assistant audio part down to audioEndMs and trims the
// transcript to match, so that replayed history reflects what the listener
// actually heard before interrupting.
func (c *Conversation) Truncate(id string, contentIndex, audioEndMs int) error {
	i, ok := c.index[id]
	if !ok {
		return realtime.Errorf(realtime.ErrItemNotFound, "item %q does not exist", id)
	}
	it := c.items[i]
	if it.Type != realtime.ItemTypeMessage || it.Role != realtime.RoleAssistant {
		return realtime.NewError(realtime.ErrInvalidItem, "only assistant message items can be truncated")
	}
	part, ok := it.AudioPart(contentIndex)
	if !ok {
		return realtime.Errorf(realtime.ErrInvalidItem,
			"content[%d] is not an audio part", contentIndex).WithParam("content_index")
	}
	if audioEndMs < 0 {
		return realtime.NewError(realtime.ErrInvalidRequest,
			"audio_end_ms must not be negative").WithParam("audio_end_ms")
	}
	end := audio.BytesForDuration(time.Duration(audioEndMs)*time.Millisecond, sampleRate)
	if end > len(part.PCM) {
		have := audio.Duration(len(part.PCM), sampleRate)
		return realtime.Errorf(realtime.ErrInvalidRequest,
			"audio_end_ms %d exceeds the %d ms of audio present", audioEndMs, have.Milliseconds()).WithParam("audio_end_ms")
	}
	frac := 1.0
	if n := len(part.PCM); n > 0 {
		frac = float64(end) / float64(n)
	}
	part.PCM = part.PCM[:end]
	part.Transcript = transcriptPrefix(part.Transcript, frac)
	return nil
}

// transcriptPrefix keeps roughly the first frac of s, backing up to the word
// boundary preceding the proportional cut.
func transcriptPrefix(s string, frac float64) string {
	if s == "" || frac >= 1 {
		return s
	}
	if frac <= 0 {
		return ""
	}
	cut := int(float64(len(s)) * frac)
	for cut > 0 && cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut--
	}
	head := s[:cut]
	if i := strings.LastIndexByte(head, ' '); i > 0 {
		head = head[:i]
	}
	return strings.TrimRight(head, " ")
}

// ProjectHistory maps the log to model messages. The read is pure: no item
// is mutated and repeated projections of an unchanged log are identical.
//
// Items that are not completed are skipped. Audio parts contribute their
// transcript; a completed audio item whose transcription has not arrived is
// dropped with a warning rather than sent as an empty message. Consecutive
// completed function_call items coalesce into one assistant message carrying
// all their calls, and function_call_output items become tool messages.
func (c *Conversation) ProjectHistory() []types.Message {
	msgs := make([]types.Message, 0, len(c.items))
	var calls []types.ToolCall
	flush := func() {
		if len(calls) == 0 {
			return
		}
		msgs = append(msgs, types.Message{Role: "assistant", ToolCalls: calls})
		calls = nil
	}
	for _, it := range c.items {
		if it.Status != realtime.ItemStatusCompleted {
			c.log.Debug("skipping non-completed item in model history",
				"item_id", it.ID, "status", it.Status)
			continue
		}
		switch it.Type {
		case realtime.ItemTypeMessage:
			text, ok := messageText(it)
			if !ok {
				c.log.Warn("dropping audio item without transcript from model history", "item_id", it.ID)
				continue
			}
			flush()
			msgs = append(msgs, types.Message{Role: string(it.Role), Content: text})
		case realtime.ItemTypeFunctionCall:
			calls = append(calls, types.ToolCall{ID: it.CallID, Name: it.Name, Arguments: it.Arguments})
		case realtime.ItemTypeFunctionCallOutput:
			flush()
			msgs = append(msgs, types.Message{Role: "tool", ToolCallID: it.CallID, Content: it.Output})
		}
	}
	flush()
	return msgs
}

func messageText(it *realtime.Item) (string, bool) {
	var b strings.Builder
	for _, p := range it.Content {
		switch p.Type {
		case realtime.PartTypeInputText, realtime.PartTypeText:
			b.WriteString(p.Text)
		case realtime.PartTypeInputAudio, realtime.PartTypeAudio:
			if p.Transcript == "" {
				return "", false
			}
			b.WriteString(p.Transcript)
		}
	}
	return b.String(), true
}

// Len returns the number of items in the log.
func (c *Conversation) Len() int { return len(c.items) }

// Items returns the log in order. The slice is fresh; the items are live.
func (c *Conversation) Items() []*realtime.Item { return slices.Clone(c.items) }

// IDs returns the ids of all items currently in the log, in order.
func (c *Conversation) IDs() []string {
	ids := make([]string, len(c.items))
	for i, it := range c.items {
		ids[i] = it.ID
	}
	return ids
}

// LastID returns the id of the tail item, empty for an empty log.
func (c *Conversation) LastID() string {
	if len(c.items) == 0 {
		return ""
	}
	return c.items[len(c.items)-1].ID
}
