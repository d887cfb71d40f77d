package model

type Role string

const (
	RoleAdmin            Role = "ADMIN"
	RoleModerator        Role = "MODERATOR"
	RoleVendor           Role = "VENDOR"
	RoleDeliveryman      Role = "DELIVERYMAN"
	RoleHubAdmin         Role = "HUB_ADMIN"
	RoleHubEmployee      Role = "HUB_EMPLOYEE"
	RolePickupPointAdmin Role = "PICKUP_POINT_ADMIN"
	RoleClient           Role = "CLIENT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleVendor, RoleDeliveryman,
		RoleHubAdmin, RoleHubEmployee, RolePickupPointAdmin, RoleClient:
		return true
	}
	return false
}

// Principal is the authenticated caller as asserted by the identity gateway.
type Principal struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsHubStaff covers the roles allowed to intake parcels at a hub.
func (p Principal) IsHubStaff() bool {
	switch p.Role {
	case RoleAdmin, RoleModerator, RoleHubAdmin, RoleHubEmployee:
		return true
	}
	return false
}
