package domain

import "time"

// Role is the fixed set of user roles
type Role string

const (
	RoleCustomer Role = "customer"
	RoleMechanic Role = "mechanic"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleMechanic, RoleAdmin:
		return true
	}
	return false
}

// WorkHours is a weekly availability range, e.g. {"monday", "08:00", "17:00"}
type WorkHours struct {
	Day   string `json:"day" bson:"day"`
	Start string `json:"start" bson:"start"`
	End   string `json:"end" bson:"end"`
}

// User represents a customer, mechanic or admin. Users are provisioned by
// the identity service; this service only reads them and maintains the
// mechanic counters and workshop affiliation.
type User struct {
	ID    string `json:"id" bson:"_id"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
	Role  Role   `json:"role" bson:"role"`

	// mechanic only
	Specializations []string    `json:"specializations,omitempty" bson:"specializations,omitempty"`
	WorkHours       []WorkHours `json:"workHours,omitempty" bson:"workHours,omitempty"`
	WorkshopID      string      `json:"workshopId,omitempty" bson:"workshopId,omitempty"`
	Rating          float64     `json:"rating,omitempty" bson:"rating,omitempty"`
	ActiveJobs      int         `json:"activeJobs,omitempty" bson:"activeJobs,omitempty"`
	CompletedJobs   int         `json:"completedJobs,omitempty" bson:"completedJobs,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Workshop groups mechanics administratively
type Workshop struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Address   string    `json:"address,omitempty" bson:"address,omitempty"`
	Phone     string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Mechanics []string  `json:"mechanics" bson:"mechanics"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Car is a vehicle registered by a customer
type Car struct {
	ID           string    `json:"id" bson:"_id"`
	OwnerID      string    `json:"ownerId" bson:"ownerId"`
	Make         string    `json:"make" bson:"make"`
	Model        string    `json:"model" bson:"model"`
	Year         int       `json:"year" bson:"year"`
	LicensePlate string    `json:"licensePlate" bson:"licensePlate"`
	VIN          string    `json:"vin,omitempty" bson:"vin,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}
