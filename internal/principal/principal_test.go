package principal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/retrievald/internal/principal"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    principal.Tier
		wantErr bool
	}{
		{name: "admin", input: "admin", want: principal.TierAdmin},
		{name: "premium", input: "premium", want: principal.TierPremium},
		{name: "basic", input: "basic", want: principal.TierBasic},
		{name: "guest", input: "guest", want: principal.TierGuest},
		{name: "unknown falls to guest", input: "superuser", want: principal.TierGuest, wantErr: true},
		{name: "empty falls to guest", input: "", want: principal.TierGuest, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := principal.ParseTier(tt.input)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, principal.ErrInvalidTier)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	adminRoles := []string{"superadmin", "ops"}

	t.Run("admin tier", func(t *testing.T) {
		p := &principal.Principal{ID: "u1", Tier: principal.TierAdmin}
		assert.True(t, p.IsAdmin(adminRoles))
	})

	t.Run("admin role on lower tier", func(t *testing.T) {
		p := &principal.Principal{ID: "u1", Tier: principal.TierBasic, Roles: []string{"ops"}}
		assert.True(t, p.IsAdmin(adminRoles))
	})

	t.Run("no admin privilege", func(t *testing.T) {
		p := &principal.Principal{ID: "u1", Tier: principal.TierPremium, Roles: []string{"editor"}}
		assert.False(t, p.IsAdmin(adminRoles))
	})

	t.Run("nil principal", func(t *testing.T) {
		var p *principal.Principal
		assert.False(t, p.IsAdmin(adminRoles))
	})

	t.Run("empty admin role set", func(t *testing.T) {
		p := &principal.Principal{ID: "u1", Tier: principal.TierBasic, Roles: []string{"ops"}}
		assert.False(t, p.IsAdmin(nil))
	})
}

func TestValidate(t *testing.T) {
	require.Error(t, (*principal.Principal)(nil).Validate())
	require.Error(t, (&principal.Principal{}).Validate())
	require.Error(t, (&principal.Principal{ID: "u1", Tier: "wizard"}).Validate())
	require.NoError(t, (&principal.Principal{ID: "u1", Tier: principal.TierGuest}).Validate())
}
