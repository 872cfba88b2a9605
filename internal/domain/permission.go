package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"tracker-api/internal/observability/logger"

	"go.uber.org/zap"
)

// =====================================================
// Permission Catalog
// =====================================================

// Permission is a catalog identifier of the form "<category>.<action>".
type Permission string

const (
	PermProjectView   Permission = "project.view"
	PermProjectEdit   Permission = "project.edit"
	PermProjectDelete Permission = "project.delete"

	PermMembersView   Permission = "members.view"
	PermMembersInvite Permission = "members.invite"
	PermMembersManage Permission = "members.manage"
	PermMembersRemove Permission = "members.remove"

	PermBoardView Permission = "board.view"
	PermBoardEdit Permission = "board.edit"

	PermTicketsCreate    Permission = "tickets.create"
	PermTicketsManageOwn Permission = "tickets.manage_own"
	PermTicketsManageAny Permission = "tickets.manage_any"

	PermSprintsManage Permission = "sprints.manage"

	PermLabelsManage Permission = "labels.manage"

	PermCommentsManageAny    Permission = "comments.manage_any"
	PermAttachmentsManageAny Permission = "attachments.manage_any"
)

// String returns the string representation of the Permission
func (p Permission) String() string {
	return string(p)
}

// Category groups permissions for presentation.
type Category string

const (
	CategoryProject    Category = "project"
	CategoryMembers    Category = "members"
	CategoryBoard      Category = "board"
	CategoryTickets    Category = "tickets"
	CategorySprints    Category = "sprints"
	CategoryLabels     Category = "labels"
	CategoryModeration Category = "moderation"
)

// PermissionMetadata describes a permission for UI rendering.
type PermissionMetadata struct {
	Key         Permission `json:"key"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Category    Category   `json:"category"`
}

// CategoryMetadata describes a permission category for UI rendering.
type CategoryMetadata struct {
	Key   Category `json:"key"`
	Label string   `json:"label"`
	Order int      `json:"order"`
}

var categories = []CategoryMetadata{
	{Key: CategoryProject, Label: "Project", Order: 0},
	{Key: CategoryMembers, Label: "Members", Order: 1},
	{Key: CategoryBoard, Label: "Board", Order: 2},
	{Key: CategoryTickets, Label: "Tickets", Order: 3},
	{Key: CategorySprints, Label: "Sprints", Order: 4},
	{Key: CategoryLabels, Label: "Labels", Order: 5},
	{Key: CategoryModeration, Label: "Moderation", Order: 6},
}

// catalog is ordered by category, then by declaration.
var catalog = []PermissionMetadata{
	{PermProjectView, "View project", "See the project and its settings", CategoryProject},
	{PermProjectEdit, "Edit project", "Rename the project and change its settings", CategoryProject},
	{PermProjectDelete, "Delete project", "Permanently delete the project", CategoryProject},

	{PermMembersView, "View members", "See who belongs to the project", CategoryMembers},
	{PermMembersInvite, "Invite members", "Add users to the project", CategoryMembers},
	{PermMembersManage, "Manage members", "Change roles and permission overrides of lower-ranked members", CategoryMembers},
	{PermMembersRemove, "Remove members", "Remove lower-ranked members from the project", CategoryMembers},

	{PermBoardView, "View board", "See columns and tickets on the board", CategoryBoard},
	{PermBoardEdit, "Edit board", "Create, rename and reorder columns", CategoryBoard},

	{PermTicketsCreate, "Create tickets", "Create new tickets", CategoryTickets},
	{PermTicketsManageOwn, "Manage own tickets", "Edit, move and delete tickets you created", CategoryTickets},
	{PermTicketsManageAny, "Manage any ticket", "Edit, move and delete any ticket", CategoryTickets},

	{PermSprintsManage, "Manage sprints", "Create, start and complete sprints", CategorySprints},

	{PermLabelsManage, "Manage labels", "Create, edit and delete labels", CategoryLabels},

	{PermCommentsManageAny, "Moderate comments", "Edit or delete comments written by others", CategoryModeration},
	{PermAttachmentsManageAny, "Moderate attachments", "Delete attachments uploaded by others", CategoryModeration},
}

var validPermissions = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(catalog))
	for _, meta := range catalog {
		m[meta.Key] = struct{}{}
	}
	return m
}()

// AllPermissions returns every permission in the catalog.
func AllPermissions() []Permission {
	perms := make([]Permission, len(catalog))
	for i, meta := range catalog {
		perms[i] = meta.Key
	}
	return perms
}

// PermissionCatalog returns the metadata of every permission.
func PermissionCatalog() []PermissionMetadata {
	out := make([]PermissionMetadata, len(catalog))
	copy(out, catalog)
	return out
}

// Categories returns category metadata in display order.
func Categories() []CategoryMetadata {
	out := make([]CategoryMetadata, len(categories))
	copy(out, categories)
	return out
}

// IsValidPermission reports whether s is a catalog permission.
func IsValidPermission(s string) bool {
	_, ok := validPermissions[Permission(s)]
	return ok
}

// ParsePermissions converts a stored permission list into catalog permissions.
//
// raw may be a structured list ([]Permission, []string, []any) or the legacy
// JSON-encoded string form. Unknown entries are dropped and malformed input
// yields an empty list; the function never fails so that a corrupted role or
// override row degrades to "no extra permissions".
func ParsePermissions(ctx context.Context, raw any) []Permission {
	var items []string

	switch v := raw.(type) {
	case nil:
		return []Permission{}
	case []Permission:
		items = make([]string, len(v))
		for i, p := range v {
			items[i] = string(p)
		}
	case []string:
		items = v
	case []any:
		items = make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				items = append(items, s)
			}
		}
	case string:
		items = decodeLegacyList(ctx, []byte(v))
	case []byte:
		items = decodeLegacyList(ctx, v)
	case json.RawMessage:
		items = decodeLegacyList(ctx, v)
	default:
		logger.GetLogger(ctx).Warn(ctx, "unsupported permission list type",
			logger.Module("permissions"),
			logger.Action("parse"),
			zap.String("type", fmt.Sprintf("%T", raw)),
		)
		return []Permission{}
	}

	seen := make(map[Permission]struct{}, len(items))
	out := make([]Permission, 0, len(items))
	for _, s := range items {
		if !IsValidPermission(s) {
			continue
		}
		p := Permission(s)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func decodeLegacyList(ctx context.Context, data []byte) []string {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		logger.GetLogger(ctx).Warn(ctx, "malformed permission list, treating as empty",
			logger.Module("permissions"),
			logger.Action("parse"),
			zap.Int("length", len(data)),
			zap.Error(err),
		)
		return nil
	}

	out := make([]string, 0, len(items))
	for _, e := range items {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// =====================================================
// Permission Set
// =====================================================

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// FullPermissionSet returns a set holding the whole catalog.
func FullPermissionSet() PermissionSet {
	return NewPermissionSet(AllPermissions()...)
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether at least one of perms is in the set.
func (s PermissionSet) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of perms is in the set.
func (s PermissionSet) HasAll(perms ...Permission) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Union returns a new set containing the members of both sets.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Slice returns the members sorted by key.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted list.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes a list, dropping entries outside the catalog.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	set := make(PermissionSet, len(items))
	for _, item := range items {
		if IsValidPermission(item) {
			set[Permission(item)] = struct{}{}
		}
	}
	*s = set
	return nil
}
