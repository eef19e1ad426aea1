package models

import (
	"fmt"
	"strings"
	"time"
)

// ActorKind identifies which side of the marketplace an invite party belongs to.
type ActorKind string

const (
	ActorDoctor ActorKind = "doctor"
	ActorClinic ActorKind = "clinic"
)

// ParseActorKind accepts the two known actor kinds, case-insensitively.
func ParseActorKind(s string) (ActorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "doctor":
		return ActorDoctor, nil
	case "clinic":
		return ActorClinic, nil
	default:
		return "", fmt.Errorf("invalid actor kind %q: must be one of doctor, clinic", s)
	}
}

// InviteStatus is the lifecycle state of an invite.
type InviteStatus string

const (
	InviteStatusPending   InviteStatus = "pending"
	InviteStatusAccepted  InviteStatus = "accepted"
	InviteStatusRejected  InviteStatus = "rejected"
	InviteStatusCancelled InviteStatus = "cancelled"
)

// ClinicMeta overrides the clinic side of a connection when the invite is accepted.
type ClinicMeta struct {
	Name string `json:"name,omitempty"`
	Href string `json:"href,omitempty"`
}

// DoctorMeta overrides the doctor side of a connection when the invite is accepted.
type DoctorMeta struct {
	Name   string `json:"name,omitempty"`
	Title  string `json:"title,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Href   string `json:"href,omitempty"`
}

// Invite is a directed relationship request between a doctor and a clinic.
type Invite struct {
	ID          string       `json:"id"`
	FromType    ActorKind    `json:"fromType"`
	FromID      string       `json:"fromId"`
	FromName    string       `json:"fromName"`
	FromTitle   string       `json:"fromTitle,omitempty"`
	FromAvatar  string       `json:"fromAvatar,omitempty"`
	ToType      ActorKind    `json:"toType"`
	ToID        string       `json:"toId"`
	ToName      string       `json:"toName"`
	ToTitle     string       `json:"toTitle,omitempty"`
	ToAvatar    string       `json:"toAvatar,omitempty"`
	Message     string       `json:"message,omitempty"`
	Status      InviteStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	RespondedAt *time.Time   `json:"respondedAt,omitempty"`
	ClinicMeta  *ClinicMeta  `json:"clinicMeta,omitempty"`
	DoctorMeta  *DoctorMeta  `json:"doctorMeta,omitempty"`
}

// SameDirection reports whether both invites link the same ordered pair of actors.
func (i Invite) SameDirection(o Invite) bool {
	return i.FromType == o.FromType && i.FromID == o.FromID &&
		i.ToType == o.ToType && i.ToID == o.ToID
}

// Involves reports whether the actor is either side of the invite.
func (i Invite) Involves(kind ActorKind, id string) bool {
	return (i.FromType == kind && i.FromID == id) || (i.ToType == kind && i.ToID == id)
}
