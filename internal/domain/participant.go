package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

// Participant is one side of a booking conversation.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role,omitempty"`
}

// NewParticipant defaults an empty role to RoleProvider.
func NewParticipant(id string, role Role) *Participant {
	if role == "" {
		role = RoleProvider
	}
	return &Participant{
		ID:   id,
		Role: role,
	}
}

// Counterpart returns the role on the other side of the conversation.
func (p *Participant) Counterpart() Role {
	if p.Role == RoleCustomer {
		return RoleProvider
	}
	return RoleCustomer
}
