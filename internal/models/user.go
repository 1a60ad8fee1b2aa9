package models

import "time"

type User struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	BoxNumber *int      `json:"box_number,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleAdmin        = "ADMIN"
	RoleBoxAgent     = "BOX_AGENT"
	RolePsychoAgent  = "PSYCHO_AGENT"
	RoleCashierAgent = "CASHIER_AGENT"
)
