package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngi-firn/firn-auth/pkg/docstore"
)

func TestCreateUserByAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUserByAdmin(ctx, CreateUserByAdminInput{
		Email:      "dana@org.com",
		GivenName:  "Dana",
		FamilyName: "Svensson",
		AllowLogin: true,
	})
	require.NoError(t, err)
	assert.Regexp(t, `^9\d{8}$`, user.GoogleID, "provisional ID in reserved range")
	assert.True(t, user.AllowLogin)
	assert.True(t, user.GoogleEmailVerified)
	assert.Empty(t, user.Tokens)
}

func TestCreateUserByAdmin_DuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUserByAdmin(ctx, CreateUserByAdminInput{Email: "dana@org.com"})
	require.NoError(t, err)

	_, err = svc.CreateUserByAdmin(ctx, CreateUserByAdminInput{Email: "dana@org.com"})
	assert.True(t, IsValidation(err))
}

func TestCreateUserByAdmin_DomainRestriction(t *testing.T) {
	svc := NewService(docstore.NewMemoryStore(), "org.com")
	ctx := context.Background()

	_, err := svc.CreateUserByAdmin(ctx, CreateUserByAdminInput{Email: "eve@elsewhere.net"})
	assert.True(t, IsValidation(err))

	_, err = svc.CreateUserByAdmin(ctx, CreateUserByAdminInput{Email: "dana@org.com"})
	assert.NoError(t, err)
}

func TestSetUserAccess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.MatchOrRegister(ctx, aliceGoogle())
	require.NoError(t, err)
	require.False(t, CanLogin(user))

	updated, err := svc.SetUserAccess(ctx, SetUserAccessInput{
		GoogleID:   user.GoogleID,
		AllowLogin: true,
	})
	require.NoError(t, err)
	assert.True(t, CanLogin(updated))

	retired, err := svc.SetUserAccess(ctx, SetUserAccessInput{
		GoogleID:   user.GoogleID,
		AllowLogin: true,
		IsRetired:  true,
		IsAdmin:    true,
	})
	require.NoError(t, err)
	assert.False(t, CanLogin(retired), "retirement wins over approval")
	assert.True(t, IsAdmin(retired))
}

func TestSetUserAccess_UnknownUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.SetUserAccess(context.Background(), SetUserAccessInput{GoogleID: "404"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteUserByAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.MatchOrRegister(ctx, aliceGoogle())
	require.NoError(t, err)

	deleted, err := svc.DeleteUserByAdmin(ctx, user.GoogleID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, deleted.ID)

	_, err = svc.GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListingBuckets(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pending, _, err := svc.MatchOrRegister(ctx, aliceGoogle())
	require.NoError(t, err)

	_, err = svc.CreateUserByAdmin(ctx, CreateUserByAdminInput{Email: "dana@org.com", AllowLogin: true})
	require.NoError(t, err)

	carol := aliceGoogle()
	carol.GoogleID = "208771155"
	carol.Email = "carol@org.com"
	carolUser, _, err := svc.MatchOrRegister(ctx, carol)
	require.NoError(t, err)
	_, err = svc.SetUserAccess(ctx, SetUserAccessInput{GoogleID: carolUser.GoogleID, IsRetired: true})
	require.NoError(t, err)

	got, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	approved, err := svc.ListApproved(ctx)
	require.NoError(t, err)
	assert.Len(t, approved, 1)

	retired, err := svc.ListRetired(ctx)
	require.NoError(t, err)
	assert.Len(t, retired, 1)
}

func TestSave_SurfacesRevisionConflict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, _, err := svc.MatchOrRegister(ctx, aliceGoogle())
	require.NoError(t, err)

	stale := *user

	// Concurrent admin action bumps the revision.
	_, err = svc.SetUserAccess(ctx, SetUserAccessInput{GoogleID: user.GoogleID, AllowLogin: true})
	require.NoError(t, err)

	stale.GoogleName = "Stale Write"
	_, err = svc.Save(ctx, &stale)
	assert.True(t, docstore.IsConflict(err), "conflict is surfaced, not retried")
}
