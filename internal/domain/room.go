package domain

import "time"

// RoomRole es el rol de un miembro dentro de una sala.
type RoomRole string

const (
	RoleOwner  RoomRole = "OWNER"
	RoleMember RoomRole = "MEMBER"
)

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Code      string    `json:"code"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomMember identifica la pertenencia (room, user); el par es unico de por
// vida, LeftAt == nil significa miembro activo.
type RoomMember struct {
	RoomID   string     `json:"room_id"`
	UserID   string     `json:"user_id"`
	Role     RoomRole   `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}
