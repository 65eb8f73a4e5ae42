package model

import (
	"slices"
	"time"
)

// Family is a group of members. Members is ordered by seniority (earliest
// admitted first) and PendingMembers by request time.
type Family struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	JoinCode       string    `json:"join_code"`
	OwnerID        int64     `json:"owner_id"`
	Members        []int64   `json:"members"`
	PendingMembers []int64   `json:"pending_members"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (f Family) HasMember(id int64) bool {
	return slices.Contains(f.Members, id)
}

func (f Family) HasPending(id int64) bool {
	return slices.Contains(f.PendingMembers, id)
}

// Clone returns a copy whose member slices do not alias f's.
func (f Family) Clone() Family {
	c := f
	c.Members = slices.Clone(f.Members)
	c.PendingMembers = slices.Clone(f.PendingMembers)
	return c
}
