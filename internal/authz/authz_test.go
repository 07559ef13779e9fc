package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kitchen-mate/clipper/internal/model"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name string
		tier Tier
		perm Permission
		want bool
	}{
		{"free can clip basic", TierFree, PermClipBasic, true},
		{"free cannot clip ai", TierFree, PermClipAI, false},
		{"free cannot upload", TierFree, PermClipUpload, false},
		{"free can manage recipes", TierFree, PermRecipeDelete, true},
		{"pro can clip ai", TierPro, PermClipAI, true},
		{"pro can upload", TierPro, PermClipUpload, true},
		{"unknown tier grants nothing", Tier("enterprise"), PermClipBasic, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.tier, tt.perm))
		})
	}
}

func TestStaticCapability_CanUseMethod(t *testing.T) {
	tiers := map[string]Tier{"alice": TierPro, "bob": TierFree}
	cap := NewStaticCapability(func(ownerID string) Tier { return tiers[ownerID] })

	assert.True(t, cap.CanUseMethod("alice", model.MethodDeterministic))
	assert.True(t, cap.CanUseMethod("alice", model.MethodAI))
	assert.True(t, cap.CanUseMethod("bob", model.MethodDeterministic))
	assert.False(t, cap.CanUseMethod("bob", model.MethodAI))
	// Unknown owners resolve to the zero tier and are denied everything.
	assert.False(t, cap.CanUseMethod("stranger", model.MethodDeterministic))
}

func TestStaticCapability_NilResolverDefaultsFree(t *testing.T) {
	cap := NewStaticCapability(nil)
	assert.True(t, cap.CanUseMethod("anyone", model.MethodDeterministic))
	assert.False(t, cap.CanUseMethod("anyone", model.MethodAI))
}
