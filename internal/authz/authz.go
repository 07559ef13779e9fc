// Package authz gates extraction methods behind per-tier permissions. It is
// a process-local stand-in for whatever authorization system fronts the
// service; the pipeline only sees the Capability interface.
package authz

import (
	"github.com/rotisserie/eris"

	"github.com/kitchen-mate/clipper/internal/model"
)

// Tier is a user subscription tier.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Permission names a single allowed action.
type Permission string

const (
	PermClipBasic    Permission = "clip_basic"
	PermClipAI       Permission = "clip_ai"
	PermClipUpload   Permission = "clip_upload"
	PermRecipeSave   Permission = "recipe_save"
	PermRecipeCreate Permission = "recipe_create"
	PermRecipeEdit   Permission = "recipe_edit"
	PermRecipeList   Permission = "recipe_list"
	PermRecipeDelete Permission = "recipe_delete"
)

var tierPermissions = map[Tier]map[Permission]bool{
	TierFree: setOf(
		PermClipBasic,
		PermRecipeSave, PermRecipeCreate, PermRecipeEdit, PermRecipeList, PermRecipeDelete,
	),
	TierPro: setOf(
		PermClipBasic, PermClipAI, PermClipUpload,
		PermRecipeSave, PermRecipeCreate, PermRecipeEdit, PermRecipeList, PermRecipeDelete,
	),
}

func setOf(perms ...Permission) map[Permission]bool {
	out := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		out[p] = true
	}
	return out
}

// HasPermission reports whether a tier grants the permission. Unknown tiers
// grant nothing.
func HasPermission(tier Tier, perm Permission) bool {
	return tierPermissions[tier][perm]
}

// PermissionForMethod maps an extraction method to the permission it needs.
func PermissionForMethod(method model.Method) Permission {
	if method == model.MethodAI {
		return PermClipAI
	}
	return PermClipBasic
}

// ErrCapabilityDenied is returned when a caller's tier does not permit the
// requested extraction method.
var ErrCapabilityDenied = eris.New("authz: capability denied")

// Capability answers whether an owner may use an extraction method. The
// pipeline consults it before any backend work is scheduled.
type Capability interface {
	CanUseMethod(ownerID string, method model.Method) bool
}

// TierResolver looks up an owner's tier. The serve layer supplies one backed
// by request headers; tests use a fixed map.
type TierResolver func(ownerID string) Tier

// StaticCapability implements Capability from a tier resolver and the static
// tier permission table.
type StaticCapability struct {
	Resolve TierResolver
}

// NewStaticCapability builds a capability check. A nil resolver treats every
// owner as free tier.
func NewStaticCapability(resolve TierResolver) *StaticCapability {
	if resolve == nil {
		resolve = func(string) Tier { return TierFree }
	}
	return &StaticCapability{Resolve: resolve}
}

func (c *StaticCapability) CanUseMethod(ownerID string, method model.Method) bool {
	return HasPermission(c.Resolve(ownerID), PermissionForMethod(method))
}
