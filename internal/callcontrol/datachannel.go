package callcontrol

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// ChannelLabelChat and ChannelLabelDiag are the two reliable, ordered
// data channels the host creates at construction (spec.md §4.3,
// "Data channels").
const (
	ChannelLabelChat = "chat"
	ChannelLabelDiag = "diag"
)

// channelMessageType is the type field of every frame sent on chat or diag.
type channelMessageType string

const (
	channelMsgChat    channelMessageType = "chat"
	channelMsgControl channelMessageType = "control"
	channelMsgDiag    channelMessageType = "diag"
)

// channelMessage is the envelope on both data channels.
type channelMessage struct {
	Type    channelMessageType `json:"type"`
	Payload json.RawMessage    `json:"payload"`
}

// MaxIncomingChannelMessageChars bounds incoming frames; larger
// messages are dropped silently (spec.md §4.3).
const MaxIncomingChannelMessageChars = 16000

// MaxChatMessageChars bounds an outgoing chat message after
// sanitization.
const MaxChatMessageChars = 500

// MinChatSendInterval is the local throttle between chat sends.
const MinChatSendInterval = 250 * time.Millisecond

var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
var whitespaceRunPattern = regexp.MustCompile(`\s+`)

// sanitizeChatText strips control characters and collapses whitespace runs.
func sanitizeChatText(text string) string {
	stripped := controlCharPattern.ReplaceAllString(text, "")
	collapsed := whitespaceRunPattern.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(collapsed)
}

// controlStatePayload is the body of a "control" channel message
// broadcasting local media toggle state.
type controlStatePayload struct {
	AudioEnabled bool      `json:"audioEnabled"`
	VideoEnabled bool      `json:"videoEnabled"`
	Timestamp    time.Time `json:"timestamp"`
}

// chatPayload is the body of a "chat" channel message.
type chatPayload struct {
	Text string `json:"text"`
}

// createDataChannels is called only for the host; it creates chat
// and diag as reliable, ordered channels.
func (c *Controller) createDataChannels() error {
	ordered := true
	chat, err := c.pc.CreateDataChannel(ChannelLabelChat, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return err
	}
	diag, err := c.pc.CreateDataChannel(ChannelLabelDiag, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.chatChan = chat
	c.diagChan = diag
	c.mu.Unlock()

	c.wireChannel(chat)
	c.wireChannel(diag)
	return nil
}

// onDataChannel is the joiner's handler for channels opened by the host.
func (c *Controller) onDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	switch dc.Label() {
	case ChannelLabelChat:
		c.chatChan = dc
	case ChannelLabelDiag:
		c.diagChan = dc
	}
	c.mu.Unlock()
	c.wireChannel(dc)
}

func (c *Controller) wireChannel(dc *webrtc.DataChannel) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.handleChannelMessage(msg.Data)
	})
}

// handleChannelMessage parses and routes one incoming data-channel
// frame. Oversized, malformed, or unknown-type frames are dropped
// silently (spec.md §4.3, §9).
func (c *Controller) handleChannelMessage(data []byte) {
	if len(data) > MaxIncomingChannelMessageChars {
		return
	}
	var msg channelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case channelMsgChat:
		var payload chatPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if c.handlers.OnChatMessage != nil {
			c.handlers.OnChatMessage(payload.Text, time.Now())
		}
	case channelMsgControl:
		var payload controlStatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if c.handlers.OnRemoteMediaState != nil {
			c.handlers.OnRemoteMediaState(payload.AudioEnabled, payload.VideoEnabled, payload.Timestamp)
		}
	case channelMsgDiag:
		c.handleRemoteDiagMessage(msg.Payload)
	default:
		// Unknown type values on channels are dropped (spec.md §9).
	}
}

// SendChat sends a chat message, enforcing the minimum send interval
// and the post-sanitization length bound.
func (c *Controller) SendChat(text string) error {
	sanitized := sanitizeChatText(text)
	if sanitized == "" {
		return nil
	}
	if len(sanitized) > MaxChatMessageChars {
		sanitized = sanitized[:MaxChatMessageChars]
	}

	c.mu.Lock()
	now := time.Now()
	if !c.lastChatSent.IsZero() && now.Sub(c.lastChatSent) < MinChatSendInterval {
		c.mu.Unlock()
		return nil
	}
	c.lastChatSent = now
	chat := c.chatChan
	c.mu.Unlock()

	if chat == nil {
		return nil
	}
	return sendJSON(chat, channelMsgChat, chatPayload{Text: sanitized})
}

// ToggleMicrophoneEnabled flips the enabled flag on the local audio
// track and broadcasts the resulting state to the peer.
func (c *Controller) ToggleMicrophoneEnabled(enabled bool) error {
	c.media.SetAudioEnabled(enabled)
	c.mu.Lock()
	c.localAudioEnabled = enabled
	videoEnabled := c.localVideoEnabled
	c.mu.Unlock()
	return c.broadcastMediaState(enabled, videoEnabled)
}

// ToggleCameraEnabled flips the enabled flag on the local video track
// and broadcasts the resulting state to the peer.
func (c *Controller) ToggleCameraEnabled(enabled bool) error {
	c.media.SetVideoEnabled(enabled)
	c.mu.Lock()
	c.localVideoEnabled = enabled
	audioEnabled := c.localAudioEnabled
	c.mu.Unlock()
	return c.broadcastMediaState(audioEnabled, enabled)
}

func (c *Controller) broadcastMediaState(audioEnabled, videoEnabled bool) error {
	c.mu.Lock()
	chat := c.chatChan
	c.mu.Unlock()
	if chat == nil {
		return nil
	}
	return sendJSON(chat, channelMsgControl, controlStatePayload{
		AudioEnabled: audioEnabled,
		VideoEnabled: videoEnabled,
		Timestamp:    time.Now(),
	})
}

func sendJSON(dc *webrtc.DataChannel, typ channelMessageType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(channelMessage{Type: typ, Payload: body})
	if err != nil {
		return err
	}
	return dc.SendText(string(frame))
}
