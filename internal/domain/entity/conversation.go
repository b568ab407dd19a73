package entity

import "time"

const (
	ConversationTypeIndividual = "individual"
	ConversationTypeGroup      = "group"
)

type Conversation struct {
	ID   string `json:"id" firestore:"id"`
	Type string `json:"type" firestore:"type"` // "individual" or "group"

	// Individual conversations pair one customer with the admin side.
	CustomerID    string `json:"customer_id,omitempty" firestore:"customerId,omitempty"`
	AdminID       string `json:"admin_id,omitempty" firestore:"adminId,omitempty"`
	CustomerName  string `json:"customer_name,omitempty" firestore:"customerName,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty" firestore:"customerPhone,omitempty"`

	// Group conversations mirror their group's identity so the directory
	// can render without a second read.
	GroupID     string `json:"group_id,omitempty" firestore:"groupId,omitempty"`
	GroupName   string `json:"group_name,omitempty" firestore:"groupName,omitempty"`
	MemberCount int    `json:"member_count,omitempty" firestore:"memberCount,omitempty"`

	LastMessage   string    `json:"last_message" firestore:"lastMessage"`
	LastMessageAt time.Time `json:"last_message_at" firestore:"lastMessageAt"`

	// UnreadCount is per-viewer for individual conversations. Group
	// conversations track a single aggregate in GroupUnread.
	UnreadCount map[string]int `json:"unread_count,omitempty" firestore:"unreadCount,omitempty"`
	GroupUnread int            `json:"group_unread,omitempty" firestore:"groupUnread,omitempty"`

	IsBlocked bool      `json:"is_blocked" firestore:"isBlocked"`
	BlockedBy string    `json:"blocked_by,omitempty" firestore:"blockedBy,omitempty"`
	BlockedAt time.Time `json:"blocked_at,omitempty" firestore:"blockedAt,omitempty"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

// UnreadFor returns the unread count as seen by viewerID.
func (c *Conversation) UnreadFor(viewerID string) int {
	if c.Type == ConversationTypeGroup {
		return c.GroupUnread
	}
	if c.UnreadCount == nil {
		return 0
	}
	return c.UnreadCount[viewerID]
}

// OtherParty returns the pair member that is not userID. Empty for groups
// and for users outside the pair.
func (c *Conversation) OtherParty(userID string) string {
	if c.Type != ConversationTypeIndividual {
		return ""
	}
	switch userID {
	case c.CustomerID:
		return c.AdminID
	case c.AdminID:
		return c.CustomerID
	}
	return ""
}
