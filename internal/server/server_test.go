package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/featureflags"
	"parley/internal/models"
	"parley/internal/repository"
	"parley/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret-key-12345678901234567890123456789012"

type testServer struct {
	app *fiber.App
	srv *Server
	db  *gorm.DB
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Conversation{},
		&models.ConversationSettings{},
		&models.Membership{},
		&models.ThreadLink{},
	))

	cfg := &config.Config{
		JWTSecret:        testJWTSecret,
		InternalAPIToken: "internal-test-token",
		Env:              "test",
	}
	// Built by hand rather than NewServerWithDeps so repeated setups do not
	// re-register the Prometheus HTTP collectors.
	convRepo := repository.NewConversationRepository(db)
	memberRepo := repository.NewMembershipRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	srv := &Server{
		config:     cfg,
		db:         db,
		convRepo:   convRepo,
		memberRepo: memberRepo,
		threadRepo: threadRepo,
	}
	srv.roomService = service.NewRoomService(convRepo, memberRepo)
	srv.memberService = service.NewMemberService(convRepo, memberRepo, cache.LookupInvite)
	srv.resolverService = service.NewResolverService(convRepo)
	srv.threadService = service.NewThreadService(convRepo, memberRepo, threadRepo)
	srv.activityService = service.NewActivityService(convRepo)

	app := fiber.New()
	srv.SetupRoutes(app)
	return &testServer{app: app, srv: srv, db: db}
}

func authToken(t *testing.T, userID uint) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

// doJSON performs a request as the given user and decodes the JSON response.
func (ts *testServer) doJSON(t *testing.T, method, path string, userID uint, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+authToken(t, userID))
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	_ = resp.Body.Close()
	return resp
}

func (ts *testServer) createRoom(t *testing.T, creatorID uint, memberIDs ...uint) *models.Conversation {
	t.Helper()
	var conv models.Conversation
	resp := ts.doJSON(t, http.MethodPost, "/api/conversations", creatorID, fiber.Map{
		"kind":       "group",
		"title":      gofakeit.NounAbstract(),
		"member_ids": memberIDs,
	}, &conv)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return &conv
}

func errCode(t *testing.T, resp *http.Response, body *models.ErrorResponse) string {
	t.Helper()
	require.NotNil(t, body)
	return body.Code
}

func TestCreateAndGetRoom(t *testing.T) {
	ts := setupTestServer(t)
	conv := ts.createRoom(t, 1, 2, 3)

	var got models.Conversation
	resp := ts.doJSON(t, http.MethodGet, "/api/conversations/"+conv.ID.String(), 2, nil, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, conv.ID, got.ID)
	assert.Len(t, got.Members, 3)
	require.NotNil(t, got.Settings)
	assert.Equal(t, models.JoinInviteOnly, got.Settings.JoinPolicy)

	// Non-members get a 403.
	var errBody models.ErrorResponse
	resp = ts.doJSON(t, http.MethodGet, "/api/conversations/"+conv.ID.String(), 42, nil, &errBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeNotAMember, errCode(t, resp, &errBody))

	// Unauthenticated requests never reach the handler.
	resp = ts.doJSON(t, http.MethodGet, "/api/conversations/"+conv.ID.String(), 0, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Bad UUID.
	resp = ts.doJSON(t, http.MethodGet, "/api/conversations/not-a-uuid", 1, nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListRoomsOrdering(t *testing.T) {
	ts := setupTestServer(t)
	first := ts.createRoom(t, 1)
	second := ts.createRoom(t, 1)

	// Activity on the first room floats it to the top.
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/internal/conversations/%s/activity", first.ID), bytes.NewBufferString(
			`{"occurred_at":"2026-08-30T12:00:00Z","preview":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", "internal-test-token")
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rooms []*models.Conversation
	listResp := ts.doJSON(t, http.MethodGet, "/api/conversations", 1, nil, &rooms)
	assert.Equal(t, http.StatusOK, listResp.StatusCode)
	require.Len(t, rooms, 2)
	assert.Equal(t, first.ID, rooms[0].ID)
	assert.Equal(t, second.ID, rooms[1].ID)
}

func TestResolveDirectEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	var conv models.Conversation
	resp := ts.doJSON(t, http.MethodPost, "/api/conversations/direct", 1,
		fiber.Map{"peer_user_id": 2}, &conv)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, models.KindDirect, conv.Kind)

	// The peer resolving back gets the same conversation with a 200.
	var again models.Conversation
	resp = ts.doJSON(t, http.MethodPost, "/api/conversations/direct", 2,
		fiber.Map{"peer_user_id": 1}, &again)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, conv.ID, again.ID)

	resp = ts.doJSON(t, http.MethodPost, "/api/conversations/direct", 1,
		fiber.Map{"peer_user_id": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJoinLeaveFlow(t *testing.T) {
	ts := setupTestServer(t)
	conv := ts.createRoom(t, 1)

	// invite_only: cold join is refused.
	var errBody models.ErrorResponse
	resp := ts.doJSON(t, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/join", 5, nil, &errBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeInviteRequired, errBody.Code)

	// Open the room; join succeeds.
	resp = ts.doJSON(t, http.MethodPatch, "/api/conversations/"+conv.ID.String()+"/settings", 1,
		fiber.Map{"join_policy": "open"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m models.Membership
	resp = ts.doJSON(t, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/join", 5, nil, &m)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, models.RoleMember, m.BaseRole)

	// Joining twice conflicts.
	resp = ts.doJSON(t, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/join", 5, nil, &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.CodeAlreadyActiveMember, errBody.Code)

	resp = ts.doJSON(t, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/leave", 5, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The sole owner cannot leave.
	resp = ts.doJSON(t, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/leave", 1, nil, &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.CodeLastOwnerViolation, errBody.Code)
}

func TestMemberManagementFlow(t *testing.T) {
	ts := setupTestServer(t)
	conv := ts.createRoom(t, 1, 2)
	base := "/api/conversations/" + conv.ID.String()

	// Owner promotes user 2 to admin.
	var m models.Membership
	resp := ts.doJSON(t, http.MethodPatch, base+"/members/2/role", 1, fiber.Map{"role": "admin"}, &m)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.RoleAdmin, m.BaseRole)

	// The admin adds user 3 despite invite_only.
	resp = ts.doJSON(t, http.MethodPost, base+"/members", 2, fiber.Map{"user_id": 3}, &m)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// A member cannot remove anyone.
	var errBody models.ErrorResponse
	resp = ts.doJSON(t, http.MethodDelete, base+"/members/2", 3, nil, &errBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeInsufficientRole, errBody.Code)
	assert.Equal(t, "insufficient_role", errBody.Reason)

	// The admin removes user 3.
	resp = ts.doJSON(t, http.MethodDelete, base+"/members/3", 2, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Member self-settings.
	resp = ts.doJSON(t, http.MethodPatch, base+"/members/me", 2,
		fiber.Map{"display_name": "captain", "notification_level": "mentions"}, &m)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "captain", m.DisplayName)
	assert.Equal(t, models.NotifyMentions, m.NotificationLevel)

	// The member list reflects the removal; non-members cannot read it.
	var members []*models.Membership
	resp = ts.doJSON(t, http.MethodGet, base+"/members", 2, nil, &members)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, members, 2)
	resp = ts.doJSON(t, http.MethodGet, base+"/members", 3, nil, &errBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeNotAMember, errBody.Code)
	assert.Equal(t, "not_a_member", errBody.Reason)

	// History shows user 3's closed interval to the owner.
	var history []*models.Membership
	resp = ts.doJSON(t, http.MethodGet, base+"/members/3/history", 1, nil, &history)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, history, 1)
	assert.NotNil(t, history[0].LeftAt)
}

func TestRoomStateToggles(t *testing.T) {
	ts := setupTestServer(t)
	conv := ts.createRoom(t, 1, 2)
	base := "/api/conversations/" + conv.ID.String()

	resp := ts.doJSON(t, http.MethodPost, base+"/lock", 1, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A locked room denies member sends with the lock reason.
	var decision struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	resp = ts.doJSON(t, http.MethodGet, base+"/permissions/send_message", 2, nil, &decision)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "room_locked", decision.Reason)

	resp = ts.doJSON(t, http.MethodPost, base+"/unlock", 1, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.doJSON(t, http.MethodGet, base+"/permissions/send_message", 2, nil, &decision)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decision.Allowed)

	// Members cannot archive.
	var errBody models.ErrorResponse
	resp = ts.doJSON(t, http.MethodPost, base+"/archive", 2, nil, &errBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.doJSON(t, http.MethodPost, base+"/archive", 1, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestThreadEndpoints(t *testing.T) {
	ts := setupTestServer(t)
	conv := ts.createRoom(t, 1, 2)
	base := "/api/conversations/" + conv.ID.String()

	var link models.ThreadLink
	resp := ts.doJSON(t, http.MethodPost, base+"/threads", 2,
		fiber.Map{"parent_message_key": "msg-9", "title": "tangent"}, &link)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, uint(1), link.Depth)

	// Creating again for the same message returns the existing thread.
	var again models.ThreadLink
	resp = ts.doJSON(t, http.MethodPost, base+"/threads", 1,
		fiber.Map{"parent_message_key": "msg-9"}, &again)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, link.ID, again.ID)

	var links []*models.ThreadLink
	resp = ts.doJSON(t, http.MethodGet, base+"/threads", 1, nil, &links)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, links, 1)

	resp = ts.doJSON(t, http.MethodGet, base+"/threads?message_key=msg-9", 1, nil, &again)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, link.ID, again.ID)

	var errBody models.ErrorResponse
	resp = ts.doJSON(t, http.MethodGet, base+"/threads?message_key=missing", 1, nil, &errBody)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeatureFlagKillSwitch(t *testing.T) {
	ts := setupTestServer(t)
	ts.srv.featureFlags = featureflags.NewManager("disable_thread_creation=on")
	conv := ts.createRoom(t, 1)

	resp := ts.doJSON(t, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/threads", 1,
		fiber.Map{"parent_message_key": "msg-1"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Reads are unaffected.
	resp = ts.doJSON(t, http.MethodGet, "/api/conversations/"+conv.ID.String()+"/threads", 1, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var flags struct {
		Evaluated map[string]bool `json:"evaluated"`
	}
	resp = ts.doJSON(t, http.MethodGet, "/api/feature-flags", 1, nil, &flags)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, flags.Evaluated["disable_thread_creation"])
}

func TestInternalSurfaceAuth(t *testing.T) {
	ts := setupTestServer(t)
	conv := ts.createRoom(t, 1, 2)
	path := fmt.Sprintf("/internal/conversations/%s/members/2", conv.ID)

	// Without the shared token the internal surface refuses.
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A user JWT is not valid on the internal surface either.
	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+authToken(t, 1))
	resp, err = ts.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Internal-Token", "internal-test-token")
	resp, err = ts.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["is_active_member"])
}

func TestInternalActivityIdempotence(t *testing.T) {
	ts := setupTestServer(t)
	conv := ts.createRoom(t, 1)
	path := fmt.Sprintf("/internal/conversations/%s/activity", conv.ID)

	post := func(body string) map[string]bool {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Internal-Token", "internal-test-token")
		resp, err := ts.app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	assert.True(t, post(`{"occurred_at":"2026-08-30T12:00:02Z","preview":"newest"}`)["applied"])
	// Older and duplicate events are ignored.
	assert.False(t, post(`{"occurred_at":"2026-08-30T12:00:00Z","preview":"older"}`)["applied"])
	assert.False(t, post(`{"occurred_at":"2026-08-30T12:00:02Z","preview":"newest"}`)["applied"])

	// Unknown conversation.
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/internal/conversations/%s/activity", uuid.New()),
		bytes.NewBufferString(`{"occurred_at":"2026-08-30T12:00:00Z"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", "internal-test-token")
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
