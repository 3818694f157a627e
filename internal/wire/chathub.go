// ABOUTME: Message shapes for the chathub protocol: handshake, invocation, updates, completion.
// ABOUTME: These mirror the backend's undocumented JSON format; unknown fields are ignored on decode.

package wire

// Handshake is the protocol-negotiation frame sent immediately after the
// transport opens. The backend acknowledges it with an empty-object frame.
type Handshake struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

// Ping is the keepalive frame sent back to the backend to hold the transport open.
type Ping struct {
	Type int `json:"type"`
}

// Message is one chat message fragment. Fragments sharing a MessageID replace
// each other; MessageType is empty for normal chat text and set for status
// fragments (search progress, generation notices).
type Message struct {
	MessageID          string              `json:"messageId"`
	Author             string              `json:"author"`
	MessageType        string              `json:"messageType,omitempty"`
	Text               string              `json:"text"`
	CreatedAt          string              `json:"createdAt,omitempty"`
	SourceAttributions []SourceAttribution `json:"sourceAttributions,omitempty"`
	SuggestedResponses []SuggestedResponse `json:"suggestedResponses,omitempty"`
}

// SourceAttribution is a citation attached to an answer fragment.
type SourceAttribution struct {
	ProviderDisplayName string `json:"providerDisplayName"`
	SeeMoreURL          string `json:"seeMoreUrl"`
}

// SuggestedResponse is a follow-up prompt offered by the backend.
type SuggestedResponse struct {
	Text string `json:"text"`
}

// UpdateFrame is a type-1 frame carrying incremental message fragments.
type UpdateFrame struct {
	Type      int              `json:"type"`
	Target    string           `json:"target"`
	Arguments []UpdateArgument `json:"arguments"`
}

// UpdateArgument is one entry of an update frame's argument list.
type UpdateArgument struct {
	Messages  []Message `json:"messages"`
	RequestID string    `json:"requestId"`
}

// CompletionFrame is a type-2 frame carrying the full final message list.
type CompletionFrame struct {
	Type int            `json:"type"`
	Item CompletionItem `json:"item"`
}

// CompletionItem is the payload of a completion frame.
type CompletionItem struct {
	Messages               []Message   `json:"messages"`
	ConversationID         string      `json:"conversationId"`
	ConversationExpiryTime string      `json:"conversationExpiryTime"`
	Result                 *ItemResult `json:"result,omitempty"`
}

// ItemResult reports the backend's own verdict on the exchange.
type ItemResult struct {
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Invocation is the type-4 query frame that starts an exchange.
type Invocation struct {
	Arguments    []ChatArgument `json:"arguments"`
	InvocationID string         `json:"invocationId"`
	Target       string         `json:"target"`
	Type         int            `json:"type"`
}

// ChatArgument carries the user text, conversation handle fields, and the
// fixed feature flags the backend expects on every query.
type ChatArgument struct {
	Source                string      `json:"source"`
	OptionsSets           []string    `json:"optionsSets"`
	IsStartOfSession      bool        `json:"isStartOfSession"`
	Message               ChatMessage `json:"message"`
	ConversationSignature string      `json:"conversationSignature"`
	Participant           Participant `json:"participant"`
	ConversationID        string      `json:"conversationId"`
}

// ChatMessage is the user message inside an invocation.
type ChatMessage struct {
	Locale      string `json:"locale"`
	Market      string `json:"market"`
	Region      string `json:"region"`
	Location    string `json:"location,omitempty"`
	Author      string `json:"author"`
	InputMethod string `json:"inputMethod"`
	Text        string `json:"text"`
	MessageType string `json:"messageType"`
	RequestID   string `json:"requestId"`
	Timestamp   string `json:"timestamp"`
}

// Participant identifies the client side of a conversation.
type Participant struct {
	ID string `json:"id"`
}
