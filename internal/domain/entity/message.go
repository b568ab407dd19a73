package entity

import "time"

const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeAudio    = "audio"
	MessageTypeVideo    = "video"
	MessageTypeLocation = "location"
	MessageTypeDocument = "document"
	MessageTypeLink     = "link"
)

type FileAttachment struct {
	URL  string `json:"url" firestore:"url"`
	Name string `json:"name,omitempty" firestore:"name,omitempty"`
	Size int64  `json:"size,omitempty" firestore:"size,omitempty"`
}

type GeoPoint struct {
	Latitude  float64 `json:"latitude" firestore:"latitude"`
	Longitude float64 `json:"longitude" firestore:"longitude"`
	Address   string  `json:"address,omitempty" firestore:"address,omitempty"`
}

type LinkPreview struct {
	URL         string `json:"url" firestore:"url"`
	Title       string `json:"title,omitempty" firestore:"title,omitempty"`
	Description string `json:"description,omitempty" firestore:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty" firestore:"imageUrl,omitempty"`
}

type ReadReceipt struct {
	UserID string    `json:"user_id" firestore:"userId"`
	ReadAt time.Time `json:"read_at" firestore:"readAt"`
}

// Message is a tagged union keyed by Type; exactly one of the payload
// fields below matters for a given type.
type Message struct {
	ID             string `json:"id" firestore:"id"`
	ConversationID string `json:"conversation_id" firestore:"conversationId"`
	GroupID        string `json:"group_id,omitempty" firestore:"groupId,omitempty"`

	SenderID   string `json:"sender_id" firestore:"senderId"`
	SenderName string `json:"sender_name" firestore:"senderName"`
	SenderRole string `json:"sender_role" firestore:"senderRole"`

	Type     string          `json:"type" firestore:"type"`
	Text     string          `json:"text,omitempty" firestore:"text,omitempty"`
	File     *FileAttachment `json:"file,omitempty" firestore:"file,omitempty"`
	Location *GeoPoint       `json:"location,omitempty" firestore:"location,omitempty"`
	Link     *LinkPreview    `json:"link,omitempty" firestore:"link,omitempty"`

	Delivered bool          `json:"delivered" firestore:"delivered"`
	Read      bool          `json:"read" firestore:"read"`
	ReadBy    []ReadReceipt `json:"read_by,omitempty" firestore:"readBy,omitempty"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

// Preview renders the directory line for this message: text is truncated
// at 50 runes, non-text types show a fixed marker.
func (m *Message) Preview() string {
	switch m.Type {
	case MessageTypeImage:
		return "📷 Image"
	case MessageTypeAudio:
		return "🎵 Audio"
	case MessageTypeVideo:
		return "🎥 Video"
	case MessageTypeLocation:
		return "📍 Location"
	case MessageTypeDocument:
		return "📄 Document"
	case MessageTypeLink:
		return "🔗 Link"
	}
	runes := []rune(m.Text)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return m.Text
}
