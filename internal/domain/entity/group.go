package entity

import "time"

type Group struct {
	ID          string    `json:"id" firestore:"id"`
	Name        string    `json:"name" firestore:"name"`
	Description string    `json:"description,omitempty" firestore:"description,omitempty"`
	CreatedBy   string    `json:"created_by" firestore:"createdBy"`
	MemberCount int       `json:"member_count" firestore:"memberCount"`
	IsActive    bool      `json:"is_active" firestore:"isActive"`
	CreatedAt   time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updated_at" firestore:"updatedAt"`
}

type GroupMember struct {
	ID           string    `json:"id" firestore:"id"`
	GroupID      string    `json:"group_id" firestore:"groupId"`
	MemberID     string    `json:"member_id" firestore:"memberId"`
	MemberName   string    `json:"member_name" firestore:"memberName"`
	MemberType   string    `json:"member_type" firestore:"memberType"` // "admin" or "driver"
	IsGroupAdmin bool      `json:"is_group_admin" firestore:"isGroupAdmin"`
	AddedBy      string    `json:"added_by" firestore:"addedBy"`
	JoinedAt     time.Time `json:"joined_at" firestore:"joinedAt"`
}
