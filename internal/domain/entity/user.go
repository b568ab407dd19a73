package entity

import "time"

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleDriver   = "driver"
)

type User struct {
	ID       string `json:"id" firestore:"id"`
	Username string `json:"username" firestore:"username"`
	Name     string `json:"name,omitempty" firestore:"name,omitempty"`
	Phone    string `json:"phone,omitempty" firestore:"phone,omitempty"`
	Role     string `json:"role" firestore:"role"` // "customer", "admin", "driver"

	// Credential proof matched on verify. Hashing is handled by the auth
	// service that provisions accounts; this core only compares.
	Password string `json:"-" firestore:"password,omitempty"`

	// PushToken is cleared when the provider reports it unregistered;
	// PushTokenInvalidatedAt records when that happened.
	PushToken              string    `json:"push_token,omitempty" firestore:"pushToken,omitempty"`
	PushTokenInvalidatedAt time.Time `json:"-" firestore:"pushTokenInvalidatedAt,omitempty"`

	IsOnline bool      `json:"is_online" firestore:"isOnline"`
	LastSeen time.Time `json:"last_seen" firestore:"lastSeen"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

// DisplayName is what recipients see for this user: name, falling back to
// phone, falling back to username.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Phone != "" {
		return u.Phone
	}
	return u.Username
}
