package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/npacker/go-channels/internal/config"
	"github.com/npacker/go-channels/internal/database"
	"github.com/npacker/go-channels/internal/testutil"
	"github.com/npacker/go-channels/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestChatApp(t *testing.T, mockRepo *database.MockChatRepository) *ChatApp {
	return NewChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, mockRepo, &config.Config{
		ServerAddr: "localhost:8000",
		SigningKey: []byte("test_signing_key"),
		UploadDir:  t.TempDir(),
	})
}

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func authedRequest(method, target string, body io.Reader, userId int) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(WithUserId(req.Context(), userId))
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockChatRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestChatApp(t, mockRepo)

			rr := httptest.NewRecorder()
			app.healthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedAccount := database.Account{
		Id:           1,
		Username:     "newuser",
		DisplayName:  "New User",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	t.Run("successfully creates a new account", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetAccountByUsername", "newuser").Return(database.Account{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateAccount", mock.MatchedBy(func(params database.CreateAccountParams) bool {
			return params.Username == "newuser" &&
				params.DisplayName == "New User" &&
				verifyPassword(params.PasswordHash, "password")
		})).Return(expectedAccount, nil).Once()

		app := newTestChatApp(t, mockRepo)

		body, err := json.Marshal(RegisterRequest{Username: "newuser", DisplayName: "New User", Password: "password"})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.NotNil(t, findCookie(rr, tokenCookieKey), "expected session cookie to be set")

		var user types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, expectedAccount.Id, user.Id)
		assert.Equal(t, expectedAccount.Username, user.Username)
		assert.Equal(t, expectedAccount.DisplayName, user.DisplayName)
	})

	t.Run("fails with invalid json body", func(t *testing.T) {
		app := newTestChatApp(t, &database.MockChatRepository{})

		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("invalid json")))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("fails with missing fields", func(t *testing.T) {
		app := newTestChatApp(t, &database.MockChatRepository{})

		for _, req := range []RegisterRequest{
			{Password: "password"},
			{Username: "newuser"},
		} {
			body, err := json.Marshal(req)
			assert.NoError(t, err)

			rr := httptest.NewRecorder()
			app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBuffer(body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		}
	})

	t.Run("fails when username is taken", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByUsername", "newuser").Return(expectedAccount, nil).Once()

		app := newTestChatApp(t, mockRepo)

		body, err := json.Marshal(RegisterRequest{Username: "newuser", Password: "password"})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockRepo.AssertNotCalled(t, "CreateAccount", mock.Anything)
	})

	t.Run("fails with db error", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByUsername", "newuser").Return(database.Account{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateAccount", mock.Anything).Return(database.Account{}, errors.New("db error")).Once()

		app := newTestChatApp(t, mockRepo)

		body, err := json.Marshal(RegisterRequest{Username: "newuser", Password: "password"})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestLoginHandler(t *testing.T) {
	hash, err := hashPassword("password")
	assert.NoError(t, err)

	account := database.Account{
		Id:           1,
		Username:     "testuser",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	t.Run("successful login", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByUsername", "testuser").Return(account, nil).Once()

		app := newTestChatApp(t, mockRepo)

		body, err := json.Marshal(LoginRequest{Username: "testuser", Password: "password"})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusOK, rr.Code)

		cookie := findCookie(rr, tokenCookieKey)
		if assert.NotNil(t, cookie, "expected session cookie to be set") {
			userId, username, err := app.identityFromToken(cookie.Value)
			assert.NoError(t, err, "expected cookie to hold a valid token")
			assert.Equal(t, account.Id, userId)
			assert.Equal(t, account.Username, username)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByUsername", "testuser").Return(account, nil).Once()

		app := newTestChatApp(t, mockRepo)

		body, err := json.Marshal(LoginRequest{Username: "testuser", Password: "wrong"})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, findCookie(rr, tokenCookieKey), "expected no session cookie")
	})

	t.Run("unknown user", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByUsername", "nobody").Return(database.Account{}, sql.ErrNoRows).Once()

		app := newTestChatApp(t, mockRepo)

		body, err := json.Marshal(LoginRequest{Username: "nobody", Password: "password"})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestSessionHandler(t *testing.T) {
	t.Run("returns the current user", func(t *testing.T) {
		lastSeen := time.Now().UTC()
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountById", 1).Return(database.Account{
			Id:       1,
			Username: "testuser",
			LastSeen: sql.NullTime{Time: lastSeen, Valid: true},
		}, nil).Once()

		app := newTestChatApp(t, mockRepo)

		rr := httptest.NewRecorder()
		app.session(rr, authedRequest(http.MethodGet, "/api/auth/session", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)

		var user types.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, 1, user.Id)
		assert.Equal(t, "testuser", user.Username)
		if assert.NotNil(t, user.LastSeen, "expected last seen to be exposed") {
			assert.Equal(t, lastSeen, user.LastSeen.UTC())
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		app := newTestChatApp(t, &database.MockChatRepository{})

		rr := httptest.NewRecorder()
		app.session(rr, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestListChannelsHandler(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	channels := []database.Channel{
		{Id: 10, ExternalId: "chan1", Name: "general", OwnerId: 1},
		{Id: 11, ExternalId: "chan2", Name: "private", IsPrivate: true, OwnerId: 2},
	}
	mockRepo.On("ListChannels").Return(channels, nil).Once()
	mockRepo.On("CountMembers", 10).Return(3, nil).Once()
	mockRepo.On("CountMembers", 11).Return(1, nil).Once()
	mockRepo.On("MemberExists", 10, 1).Return(true).Once()
	mockRepo.On("MemberExists", 11, 1).Return(false).Once()
	mockRepo.On("GetJoinRequest", 10, 1).Return(database.JoinRequest{}, sql.ErrNoRows).Once()
	mockRepo.On("GetJoinRequest", 11, 1).Return(database.JoinRequest{
		Id: 5, ChannelId: 11, AccountId: 1, Status: database.JoinRequestPending,
	}, nil).Once()

	app := newTestChatApp(t, mockRepo)

	rr := httptest.NewRecorder()
	app.listChannels(rr, authedRequest(http.MethodGet, "/api/channels", nil, 1))

	assert.Equal(t, http.StatusOK, rr.Code)

	var got []types.Channel
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	if assert.Len(t, got, 2) {
		assert.Equal(t, "chan1", got[0].Id)
		assert.Equal(t, 3, got[0].MemberCount)
		assert.True(t, got[0].IsMember)
		assert.True(t, got[0].IsOwner)
		assert.False(t, got[0].Requested)

		assert.Equal(t, "chan2", got[1].Id)
		assert.True(t, got[1].IsPrivate)
		assert.False(t, got[1].IsMember)
		assert.False(t, got[1].IsOwner)
		assert.True(t, got[1].Requested, "expected pending join request to be surfaced")
	}
}

func TestCreateChannelHandler(t *testing.T) {
	t.Run("successfully creates a channel", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("CreateChannel", mock.MatchedBy(func(params database.CreateChannelParams) bool {
			return params.Name == "general" && params.OwnerId == 1 && params.ExternalId != ""
		})).Return(database.Channel{
			Id: 10, ExternalId: "chan1", Name: "general", OwnerId: 1,
		}, nil).Once()

		app := newTestChatApp(t, mockRepo)

		body, err := json.Marshal(CreateChannelRequest{Name: "general"})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.createChannel(rr, authedRequest(http.MethodPost, "/api/channels", bytes.NewBuffer(body), 1))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var ch types.Channel
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&ch))
		assert.Equal(t, "chan1", ch.Id)
		assert.Equal(t, "general", ch.Name)
		assert.True(t, ch.IsOwner)
		assert.True(t, ch.IsMember)
		assert.Equal(t, 1, ch.MemberCount)
	})

	t.Run("fails with missing name", func(t *testing.T) {
		app := newTestChatApp(t, &database.MockChatRepository{})

		body, err := json.Marshal(CreateChannelRequest{})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.createChannel(rr, authedRequest(http.MethodPost, "/api/channels", bytes.NewBuffer(body), 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestJoinChannelHandler(t *testing.T) {
	publicChannel := database.Channel{Id: 10, ExternalId: "chan1", Name: "general", OwnerId: 2}
	privateChannel := database.Channel{Id: 11, ExternalId: "chan2", Name: "private", IsPrivate: true, OwnerId: 2}

	t.Run("joins a public channel", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetChannelByExternalId", "chan1").Return(publicChannel, nil).Once()
		mockRepo.On("MemberExists", 10, 1).Return(false).Once()
		mockRepo.On("CreateMember", 10, 1, time.Unix(0, 0).UTC()).Return(database.ChannelMember{
			Id: 5, ChannelId: 10, AccountId: 1, LastReadAt: time.Unix(0, 0).UTC(),
		}, nil).Once()

		app := newTestChatApp(t, mockRepo)

		req := authedRequest(http.MethodPost, "/api/channels/chan1/join", nil, 1)
		req.SetPathValue("id", "chan1")

		rr := httptest.NewRecorder()
		app.joinChannel(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]any
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, true, resp["joined"])
	})

	t.Run("already a member", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetChannelByExternalId", "chan1").Return(publicChannel, nil).Once()
		mockRepo.On("MemberExists", 10, 1).Return(true).Once()

		app := newTestChatApp(t, mockRepo)

		req := authedRequest(http.MethodPost, "/api/channels/chan1/join", nil, 1)
		req.SetPathValue("id", "chan1")

		rr := httptest.NewRecorder()
		app.joinChannel(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockRepo.AssertNotCalled(t, "CreateMember", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("private channel files a join request", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetChannelByExternalId", "chan2").Return(privateChannel, nil).Once()
		mockRepo.On("MemberExists", 11, 1).Return(false).Once()
		mockRepo.On("GetJoinRequest", 11, 1).Return(database.JoinRequest{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateJoinRequest", 11, 1).Return(database.JoinRequest{
			Id: 5, ChannelId: 11, AccountId: 1, Status: database.JoinRequestPending,
		}, nil).Once()

		app := newTestChatApp(t, mockRepo)

		req := authedRequest(http.MethodPost, "/api/channels/chan2/join", nil, 1)
		req.SetPathValue("id", "chan2")

		rr := httptest.NewRecorder()
		app.joinChannel(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]any
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, true, resp["requested"])
		mockRepo.AssertNotCalled(t, "CreateMember", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("private channel with a pending request", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetChannelByExternalId", "chan2").Return(privateChannel, nil).Once()
		mockRepo.On("MemberExists", 11, 1).Return(false).Once()
		mockRepo.On("GetJoinRequest", 11, 1).Return(database.JoinRequest{
			Id: 5, ChannelId: 11, AccountId: 1, Status: database.JoinRequestPending,
		}, nil).Once()

		app := newTestChatApp(t, mockRepo)

		req := authedRequest(http.MethodPost, "/api/channels/chan2/join", nil, 1)
		req.SetPathValue("id", "chan2")

		rr := httptest.NewRecorder()
		app.joinChannel(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]any
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, true, resp["requested"])
		assert.Equal(t, database.JoinRequestPending, resp["status"])
		mockRepo.AssertNotCalled(t, "CreateJoinRequest", mock.Anything, mock.Anything)
	})

	t.Run("unknown channel", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetChannelByExternalId", "missing").Return(database.Channel{}, sql.ErrNoRows).Once()

		app := newTestChatApp(t, mockRepo)

		req := authedRequest(http.MethodPost, "/api/channels/missing/join", nil, 1)
		req.SetPathValue("id", "missing")

		rr := httptest.NewRecorder()
		app.joinChannel(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestApproveJoinRequestHandler(t *testing.T) {
	channel := database.Channel{Id: 11, ExternalId: "chan2", IsPrivate: true, OwnerId: 1}
	request := database.JoinRequest{Id: 5, ChannelId: 11, AccountId: 3, Status: database.JoinRequestPending}

	t.Run("owner approves", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetJoinRequestById", 5).Return(request, nil).Once()
		mockRepo.On("GetChannelById", 11).Return(channel, nil).Once()
		mockRepo.On("UpdateJoinRequestStatus", 5, database.JoinRequestApproved).Return(nil).Once()
		mockRepo.On("MemberExists", 11, 3).Return(false).Once()
		mockRepo.On("CreateMember", 11, 3, mock.Anything).Return(database.ChannelMember{
			Id: 6, ChannelId: 11, AccountId: 3,
		}, nil).Once()

		app := newTestChatApp(t, mockRepo)

		req := authedRequest(http.MethodPost, "/api/requests/5/approve", nil, 1)
		req.SetPathValue("id", "5")

		rr := httptest.NewRecorder()
		app.approveJoinRequest(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetJoinRequestById", 5).Return(request, nil).Once()
		mockRepo.On("GetChannelById", 11).Return(channel, nil).Once()

		app := newTestChatApp(t, mockRepo)

		req := authedRequest(http.MethodPost, "/api/requests/5/approve", nil, 9)
		req.SetPathValue("id", "5")

		rr := httptest.NewRecorder()
		app.approveJoinRequest(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockRepo.AssertNotCalled(t, "UpdateJoinRequestStatus", mock.Anything, mock.Anything)
	})

	t.Run("rejects instead", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetJoinRequestById", 5).Return(request, nil).Once()
		mockRepo.On("GetChannelById", 11).Return(channel, nil).Once()
		mockRepo.On("UpdateJoinRequestStatus", 5, database.JoinRequestRejected).Return(nil).Once()

		app := newTestChatApp(t, mockRepo)

		req := authedRequest(http.MethodPost, "/api/requests/5/reject", nil, 1)
		req.SetPathValue("id", "5")

		rr := httptest.NewRecorder()
		app.rejectJoinRequest(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockRepo.AssertNotCalled(t, "CreateMember", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetMessagesHandler(t *testing.T) {
	channel := database.Channel{Id: 10, ExternalId: "chan1", Name: "general"}

	t.Run("returns messages in ascending order", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		now := time.Now().UTC()
		// newest first, as the query returns them
		stored := []database.Message{
			{Id: 3, ChannelId: 10, SenderId: 1, SenderUsername: "testuser", Content: "three", CreatedAt: now},
			{Id: 2, ChannelId: 10, SenderId: 1, SenderUsername: "testuser", Content: "two", CreatedAt: now.Add(-time.Minute)},
		}

		mockRepo.On("GetChannelByExternalId", "chan1").Return(channel, nil).Once()
		mockRepo.On("MemberExists", 10, 1).Return(true).Once()
		mockRepo.On("ListMessagesBefore", 10, mock.Anything, defaultMessageLimit).Return(stored, nil).Once()

		app := newTestChatApp(t, mockRepo)

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?channel_id=chan1", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Messages []types.Message `json:"messages"`
			HasMore  bool            `json:"has_more"`
		}
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		if assert.Len(t, resp.Messages, 2) {
			assert.Equal(t, 2, resp.Messages[0].Id, "expected oldest message first")
			assert.Equal(t, 3, resp.Messages[1].Id)
			assert.Equal(t, "chan1", resp.Messages[0].ChannelId)
		}
		assert.False(t, resp.HasMore, "expected has_more to be false for a short page")
	})

	t.Run("clamps the limit", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetChannelByExternalId", "chan1").Return(channel, nil).Once()
		mockRepo.On("MemberExists", 10, 1).Return(true).Once()
		mockRepo.On("ListMessagesBefore", 10, mock.Anything, maxMessageLimit).Return([]database.Message{}, nil).Once()

		app := newTestChatApp(t, mockRepo)

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?channel_id=chan1&limit=500", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("non-member is forbidden", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetChannelByExternalId", "chan1").Return(channel, nil).Once()
		mockRepo.On("MemberExists", 10, 1).Return(false).Once()

		app := newTestChatApp(t, mockRepo)

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?channel_id=chan1", nil, 1))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockRepo.AssertNotCalled(t, "ListMessagesBefore", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid before timestamp", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetChannelByExternalId", "chan1").Return(channel, nil).Once()
		mockRepo.On("MemberExists", 10, 1).Return(true).Once()

		app := newTestChatApp(t, mockRepo)

		rr := httptest.NewRecorder()
		app.getMessages(rr, authedRequest(http.MethodGet, "/api/messages?channel_id=chan1&before=yesterday", nil, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestMarkReadHandler(t *testing.T) {
	channel := database.Channel{Id: 10, ExternalId: "chan1"}

	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetChannelByExternalId", "chan1").Return(channel, nil).Once()
	mockRepo.On("UpsertLastReadAt", 10, 1, mock.Anything).Return(nil).Once()

	app := newTestChatApp(t, mockRepo)

	rr := httptest.NewRecorder()
	app.markRead(rr, authedRequest(http.MethodPost, "/api/messages/read?channel_id=chan1", nil, 1))

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]any
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, true, resp["ok"])
	assert.NotEmpty(t, resp["last_read_at"], "expected the new watermark in the response")
}

func TestPinnedMessageHandlers(t *testing.T) {
	channel := database.Channel{Id: 10, ExternalId: "chan1"}
	message := database.Message{Id: 42, ChannelId: 10, SenderId: 2, SenderUsername: "other", Content: "important"}

	t.Run("pins a message", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetChannelByExternalId", "chan1").Return(channel, nil).Once()
		mockRepo.On("MemberExists", 10, 1).Return(true).Once()
		mockRepo.On("GetMessageById", 42).Return(message, nil).Once()
		mockRepo.On("UpsertPinnedMessage", 42, 10, 1).Return(nil).Once()

		app := newTestChatApp(t, mockRepo)

		body, err := json.Marshal(PinMessageRequest{MessageId: 42, ChannelId: "chan1"})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.pinMessage(rr, authedRequest(http.MethodPost, "/api/pinned", bytes.NewBuffer(body), 1))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("pin fails for unknown message", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetChannelByExternalId", "chan1").Return(channel, nil).Once()
		mockRepo.On("MemberExists", 10, 1).Return(true).Once()
		mockRepo.On("GetMessageById", 42).Return(database.Message{}, sql.ErrNoRows).Once()

		app := newTestChatApp(t, mockRepo)

		body, err := json.Marshal(PinMessageRequest{MessageId: 42, ChannelId: "chan1"})
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		app.pinMessage(rr, authedRequest(http.MethodPost, "/api/pinned", bytes.NewBuffer(body), 1))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockRepo.AssertNotCalled(t, "UpsertPinnedMessage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lists pinned messages", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		pinnedAt := time.Now().UTC()
		mockRepo.On("GetChannelByExternalId", "chan1").Return(channel, nil).Once()
		mockRepo.On("MemberExists", 10, 1).Return(true).Once()
		mockRepo.On("ListPinnedMessages", 10).Return([]database.PinnedMessage{
			{Id: 1, MessageId: 42, ChannelId: 10, PinnedBy: 1, PinnedAt: pinnedAt},
		}, nil).Once()
		mockRepo.On("GetMessageById", 42).Return(message, nil).Once()

		app := newTestChatApp(t, mockRepo)

		rr := httptest.NewRecorder()
		app.getPinnedMessages(rr, authedRequest(http.MethodGet, "/api/pinned?channel_id=chan1", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)

		var got []types.PinnedMessage
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		if assert.Len(t, got, 1) {
			assert.Equal(t, 42, got[0].Message.Id)
			assert.Equal(t, "chan1", got[0].Message.ChannelId)
			assert.Equal(t, "important", got[0].Message.Content)
			assert.Equal(t, 1, got[0].PinnedBy.Id)
		}
	})
}

func TestUploadFileHandler_missingFile(t *testing.T) {
	app := newTestChatApp(t, &database.MockChatRepository{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	assert.NoError(t, mw.Close())

	req := authedRequest(http.MethodPost, "/api/files/upload", &buf, 1)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	app.uploadFile(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected 400 when no file field is present")
}

func TestUploadFileHandler(t *testing.T) {
	app := newTestChatApp(t, &database.MockChatRepository{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "picture.png")
	assert.NoError(t, err)
	_, err = fw.Write([]byte("not really a png"))
	assert.NoError(t, err)
	assert.NoError(t, mw.Close())

	req := authedRequest(http.MethodPost, "/api/files/upload", &buf, 1)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	app.uploadFile(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, strings.HasPrefix(resp["url"], "/uploads/"), "expected an uploads url")
	assert.True(t, strings.HasSuffix(resp["url"], ".png"), "expected the original extension to be kept")

	stored, err := os.ReadFile(filepath.Join(app.uploadDir, strings.TrimPrefix(resp["url"], "/uploads/")))
	assert.NoError(t, err, "expected the file to be written to the upload dir")
	assert.Equal(t, "not really a png", string(stored))
}

func TestServeWsRejectsUnauthenticated(t *testing.T) {
	app := newTestChatApp(t, &database.MockChatRepository{})

	rr := httptest.NewRecorder()
	app.serveWs(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected 401 without a token")
}
