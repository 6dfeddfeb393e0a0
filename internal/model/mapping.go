package model

// Role is a logical slot a physical column can be mapped to.
type Role string

const (
	RoleTitle       Role = "title"
	RoleDescription Role = "description"
	RoleDate        Role = "date"
	RoleLocation    Role = "location"
	RoleLatitude    Role = "latitude"
	RoleLongitude   Role = "longitude"
	RoleCombined    Role = "combined_location"
)

// Mapping source values.
const (
	MappingSourceDetected = "detected"
	MappingSourceOverride = "override"
)

// Mapping assigns a logical role to a physical column. Once set for a dataset
// it is authoritative for every subsequent batch.
type Mapping struct {
	Column     string  `json:"column"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}
