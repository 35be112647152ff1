package server

import (
	"net/http"
	"testing"

	"parley/internal/cache"
	"parley/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteFlow(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() {
		mr.Close()
		// Reset the package-level client so later tests run cache-less.
		cache.InitRedis("://invalid")
	})
	cache.InitRedis(mr.Addr())

	ts := setupTestServer(t)
	conv := ts.createRoom(t, 1, 2)
	base := "/api/conversations/" + conv.ID.String()

	resp := ts.doJSON(t, http.MethodPatch, base+"/settings", 1,
		fiber.Map{"join_policy": "link_join"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Members cannot mint invites.
	var errBody models.ErrorResponse
	resp = ts.doJSON(t, http.MethodPost, base+"/invites", 2, nil, &errBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var minted struct {
		InviteToken string `json:"invite_token"`
	}
	resp = ts.doJSON(t, http.MethodPost, base+"/invites", 1, nil, &minted)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, minted.InviteToken)

	// The token admits a stranger; a bad token does not.
	resp = ts.doJSON(t, http.MethodPost, base+"/join", 9,
		fiber.Map{"invite_token": "bogus"}, &errBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeInviteRequired, errBody.Code)

	var m models.Membership
	resp = ts.doJSON(t, http.MethodPost, base+"/join", 9,
		fiber.Map{"invite_token": minted.InviteToken}, &m)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Tokens survive use but not revocation.
	resp = ts.doJSON(t, http.MethodDelete, base+"/invites/"+minted.InviteToken, 1, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.doJSON(t, http.MethodPost, base+"/join", 10,
		fiber.Map{"invite_token": minted.InviteToken}, &errBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMintInviteWithoutStore(t *testing.T) {
	ts := setupTestServer(t)
	conv := ts.createRoom(t, 1)

	var errBody models.ErrorResponse
	resp := ts.doJSON(t, http.MethodPost,
		"/api/conversations/"+conv.ID.String()+"/invites", 1, nil, &errBody)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, models.CodeStoreUnavailable, errBody.Code)
}
