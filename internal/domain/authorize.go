package domain

// ResourceKind names the resource families the authorize endpoint can check.
type ResourceKind string

const (
	ResourceTicket     ResourceKind = "ticket"
	ResourceComment    ResourceKind = "comment"
	ResourceAttachment ResourceKind = "attachment"
	ResourcePermission ResourceKind = "permission"
)

// TicketAction is an operation on a ticket.
type TicketAction string

const (
	TicketView   TicketAction = "view"
	TicketEdit   TicketAction = "edit"
	TicketMove   TicketAction = "move"
	TicketDelete TicketAction = "delete"
)

// ContentAction is an operation on a comment or attachment.
type ContentAction string

const (
	ContentEdit   ContentAction = "edit"
	ContentDelete ContentAction = "delete"
)

// AuthorizeRequest asks whether the caller may perform an action in a project.
// Route layers of other services call this before mutating data.
type AuthorizeRequest struct {
	Resource   ResourceKind `json:"resource" validate:"required,oneof=ticket comment attachment permission"`
	Action     string       `json:"action,omitempty" validate:"required_unless=Resource permission,omitempty,oneof=view edit move delete"`
	OwnerID    *string      `json:"ownerId,omitempty" validate:"omitempty,min=1,max=64"`
	Permission string       `json:"permission,omitempty" validate:"required_if=Resource permission,omitempty,max=64"`
}

// AuthorizeResponse reports an allowed decision. Denials use the error envelope.
type AuthorizeResponse struct {
	Allowed bool `json:"allowed"`
}
