package model

// ResourceType is a category label applied to resources (Car, Meeting
// Room, ...).  Type names are unique.
type ResourceType struct {
	ID       uint64 // resource_types.id
	TypeName string // resource_types.type_name
}

// Resource is a bookable entity.  TypeName is resolved from the
// resource_types table whenever a resource is read; it is ignored on
// writes.
type Resource struct {
	ID             uint64 // resources.id
	Name           string // resources.name
	ResourceTypeID uint64 // resources.resource_type_id
	TypeName       string // resource_types.type_name (joined)
}
