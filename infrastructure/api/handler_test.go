package api

import (
	"bourracho/auth"
	"bourracho/domain"
	"bourracho/errors"
	"bourracho/medias"
	"bourracho/mocks"
	"bourracho/observability"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const aliceID = "alice-id"

type fixture struct {
	router     *gin.Engine
	users      *mocks.MockIAuthService
	membership *mocks.MockIMembershipService
	chat       *mocks.MockIChatService
	token      string
}

type staticStats struct{ stats observability.Stats }

func (s staticStats) Latest() observability.Stats { return s.stats }

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	tokenizer := auth.NewTokenizer("test-secret", time.Hour)
	token, err := tokenizer.Generate(aliceID, "alice")
	require.NoError(t, err)

	f := fixture{
		users:      mocks.NewMockIAuthService(ctrl),
		membership: mocks.NewMockIMembershipService(ctrl),
		chat:       mocks.NewMockIChatService(ctrl),
		token:      token,
	}
	handler := NewHandler(log, f.users, f.membership, f.chat, 1024)
	stats := staticStats{stats: observability.Stats{Goroutines: 7, Healthy: true}}
	f.router = NewRouter(log, tokenizer, handler, nil, stats)
	return f
}

func (f fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func TestRegister_And_Login(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	user := domain.User{ID: aliceID, Username: "alice"}

	f.users.EXPECT().Register("alice", "password123").Return(user, nil)
	f.users.EXPECT().Login("alice", "password123").Return(domain.Session{User: user, Token: "jwt"}, nil)
	f.users.EXPECT().Register("alice", "password123").Return(domain.User{}, errors.ErrUserAlreadyExists)

	// Register and login do not need a token
	f.token = ""
	w := f.do(http.MethodPost, "/api/register", credentialsRequest{Username: "alice", Password: "password123"})
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `"username":"alice"`)
	req.NotContains(w.Body.String(), "password")

	w = f.do(http.MethodPost, "/api/login", credentialsRequest{Username: "alice", Password: "password123"})
	req.Equal(http.StatusOK, w.Code)
	var session domain.Session
	req.NoError(json.Unmarshal(w.Body.Bytes(), &session))
	req.Equal("jwt", session.Token)

	w = f.do(http.MethodPost, "/api/register", credentialsRequest{Username: "alice", Password: "password123"})
	req.Equal(http.StatusConflict, w.Code)
}

func TestProtected_Routes_Require_A_Token(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.token = "garbage"

	w := f.do(http.MethodGet, "/api/chat", nil)

	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestUsers(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.users.EXPECT().List().Return(nil, nil)
	f.users.EXPECT().GetManyByIDs([]string{"a", "b"}).Return([]domain.User{{ID: "a"}, {ID: "b"}}, nil)

	w := f.do(http.MethodGet, "/api/users", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`[]`, w.Body.String())

	w = f.do(http.MethodGet, "/api/users?users_ids=a&users_ids=b", nil)
	req.Equal(http.StatusOK, w.Code)
	var users []domain.User
	req.NoError(json.Unmarshal(w.Body.Bytes(), &users))
	req.Len(users, 2)
}

func TestConversation_Routes(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	conversation := domain.NewConversation("ABC123", "Trip", aliceID, false, true, "😀", time.Now())

	f.membership.EXPECT().Create(gomock.Any(), aliceID, "Trip", false, true).Return(conversation, nil)
	f.membership.EXPECT().ListForUser(aliceID).Return([]domain.Conversation{conversation}, nil)
	f.membership.EXPECT().Get("ABC123").Return(conversation, nil)
	f.membership.EXPECT().Get("NOPE00").Return(domain.Conversation{}, fmt.Errorf("%w: conversation NOPE00", errors.ErrNotFound))
	f.membership.EXPECT().Join(gomock.Any(), "ABC123", aliceID).Return(conversation, nil)
	f.membership.EXPECT().Leave(gomock.Any(), "ABC123", aliceID).
		Return(domain.Conversation{}, fmt.Errorf("%w: last member", errors.ErrPreconditionFailed))
	f.membership.EXPECT().Delete(gomock.Any(), aliceID, "ABC123").Return(nil)

	w := f.do(http.MethodPost, "/api/chat", conversationCreateRequest{Name: "Trip", IsVisible: true})
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `"id":"ABC123"`)

	w = f.do(http.MethodGet, "/api/chat", nil)
	req.Equal(http.StatusOK, w.Code)

	req.Equal(http.StatusOK, f.do(http.MethodGet, "/api/chat/ABC123", nil).Code)
	req.Equal(http.StatusNotFound, f.do(http.MethodGet, "/api/chat/NOPE00", nil).Code)
	req.Equal(http.StatusOK, f.do(http.MethodPost, "/api/chat/ABC123/join", nil).Code)

	w = f.do(http.MethodDelete, "/api/chat/ABC123/leave", nil)
	req.Equal(http.StatusPreconditionFailed, w.Code)
	req.Contains(w.Body.String(), "PreconditionFailed")

	w = f.do(http.MethodDelete, "/api/chat/ABC123", nil)
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), "ABC123")
}

func TestUpdateConversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given a rename request
	f.membership.EXPECT().
		UpdateMetadata(gomock.Any(), "ABC123", domain.MetadataUpdate{Name: lo.ToPtr("New")}, aliceID).
		Return(domain.Conversation{ID: "ABC123", Name: "New"}, nil)
	f.membership.EXPECT().
		UpdateMetadata(gomock.Any(), "ABC123", domain.MetadataUpdate{AdminID: lo.ToPtr("bob")}, aliceID).
		Return(domain.Conversation{}, fmt.Errorf("%w: admin only", errors.ErrPermissionDenied))

	// Then only supplied fields are forwarded
	req.Equal(http.StatusOK, f.do(http.MethodPatch, "/api/chat/ABC123", gin.H{"name": "New"}).Code)
	req.Equal(http.StatusForbidden, f.do(http.MethodPatch, "/api/chat/ABC123", gin.H{"admin_id": "bob"}).Code)
}

func TestUpdateMember(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.membership.EXPECT().
		UpdateMember(gomock.Any(), "ABC123", aliceID, domain.MemberUpdate{Pseudo: lo.ToPtr("Al")}).
		Return(domain.ConversationUser{Pseudo: lo.ToPtr("Al")}, nil)

	w := f.do(http.MethodPatch, "/api/chat/ABC123/members/me", gin.H{"pseudo": "Al"})

	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"pseudo":"Al"}`, w.Body.String())
}

func TestPostMessage_Json(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.chat.EXPECT().Post(gomock.Any(), "ABC123", aliceID, "hello", nil).
		Return(domain.Message{ID: "m1", ConversationID: "ABC123", Content: "hello"}, nil)
	f.chat.EXPECT().Post(gomock.Any(), "ABC123", aliceID, "", nil).
		Return(domain.Message{}, fmt.Errorf("%w: content is required", errors.ErrInvalidArgument))

	w := f.do(http.MethodPost, "/api/chat/ABC123/messages", messagePostRequest{Content: "hello"})
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `"id":"m1"`)

	w = f.do(http.MethodPost, "/api/chat/ABC123/messages", messagePostRequest{})
	req.Equal(http.StatusUnprocessableEntity, w.Code)
}

func TestPostMessage_Multipart(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	// Given a form with a content and one image
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	req.NoError(writer.WriteField("content", "look"))
	part, err := writer.CreateFormFile("medias", "cat.png")
	req.NoError(err)
	_, err = part.Write([]byte("png-bytes"))
	req.NoError(err)
	req.NoError(writer.Close())

	f.chat.EXPECT().Post(gomock.Any(), "ABC123", aliceID, "look", gomock.Any()).
		DoAndReturn(func(_ any, _, _, _ string, uploads []medias.Upload) (domain.Message, error) {
			req.Len(uploads, 1)
			req.Equal("cat.png", uploads[0].Filename)
			req.Equal([]byte("png-bytes"), uploads[0].Content)
			return domain.Message{ID: "m1"}, nil
		})

	// When it is posted
	r := httptest.NewRequest(http.MethodPost, "/api/chat/ABC123/messages", body)
	r.Header.Set("Content-Type", writer.FormDataContentType())
	r.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	// Then the files reach the chat service
	req.Equal(http.StatusOK, w.Code)
}

func TestPostMessage_Multipart_Too_Large(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("medias", "big.png")
	req.NoError(err)
	_, err = part.Write(bytes.Repeat([]byte("x"), 2048))
	req.NoError(err)
	req.NoError(writer.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/chat/ABC123/messages", body)
	r.Header.Set("Content-Type", writer.FormDataContentType())
	r.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)

	req.Equal(http.StatusUnprocessableEntity, w.Code)
}

func TestUpdateMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	message := domain.Message{ID: "m1", ConversationID: "ABC123", IssuerID: aliceID}

	// Given a request carrying a reaction, a vote and a new content
	f.chat.EXPECT().Get(gomock.Any(), "m1").Return(message, nil)
	gomock.InOrder(
		f.chat.EXPECT().React(gomock.Any(), "m1", "👍", aliceID).Return(message, nil),
		f.chat.EXPECT().Vote(gomock.Any(), "m1", aliceID, map[string]string{aliceID: "bob"}).Return(message, nil),
		f.chat.EXPECT().Edit(gomock.Any(), "m1", "edited", aliceID).
			Return(domain.Message{ID: "m1", ConversationID: "ABC123", Content: "edited"}, nil),
	)

	// When it is applied
	w := f.do(http.MethodPatch, "/api/chat/ABC123/messages", gin.H{
		"id":      "m1",
		"reacts":  []gin.H{{"emoji": "👍"}},
		"votes":   gin.H{aliceID: "bob"},
		"content": "edited",
	})

	// Then every part is applied in order and the last state is returned
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `"content":"edited"`)
}

func TestUpdateMessage_Rejections(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.chat.EXPECT().Get(gomock.Any(), "m1").Return(domain.Message{ID: "m1", ConversationID: "OTHER1"}, nil)

	req.Equal(http.StatusUnprocessableEntity, f.do(http.MethodPatch, "/api/chat/ABC123/messages", gin.H{"reacts": []gin.H{{"emoji": "👍"}}}).Code)
	req.Equal(http.StatusUnprocessableEntity, f.do(http.MethodPatch, "/api/chat/ABC123/messages", gin.H{"id": "m1"}).Code)
	req.Equal(http.StatusNotFound, f.do(http.MethodPatch, "/api/chat/ABC123/messages", gin.H{"id": "m1", "content": "x"}).Code)
}

func TestListMessages_And_Search(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.chat.EXPECT().List(gomock.Any(), "ABC123", aliceID, lo.ToPtr(2)).Return([]domain.Message{{ID: "m1"}, {ID: "m2"}}, nil)
	f.chat.EXPECT().List(gomock.Any(), "ABC123", aliceID, (*int)(nil)).
		Return(nil, fmt.Errorf("%w: not a member", errors.ErrPermissionDenied))
	f.chat.EXPECT().Search(gomock.Any(), "ABC123", aliceID, "pizza", defaultSearchLimit).Return(nil, nil)

	w := f.do(http.MethodGet, "/api/chat/ABC123/messages?limit=2", nil)
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), "m2")

	req.Equal(http.StatusForbidden, f.do(http.MethodGet, "/api/chat/ABC123/messages", nil).Code)
	req.Equal(http.StatusUnprocessableEntity, f.do(http.MethodGet, "/api/chat/ABC123/messages?limit=zero", nil).Code)

	w = f.do(http.MethodGet, "/api/chat/ABC123/search?q=pizza", nil)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`[]`, w.Body.String())
	req.Equal(http.StatusUnprocessableEntity, f.do(http.MethodGet, "/api/chat/ABC123/search", nil).Code)
}

func TestMedia(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	media := domain.MediaMetadata{ID: "md1", Key: "ABC123/md1.png", Size: 4}

	f.chat.EXPECT().MediaContent(gomock.Any(), "md1", aliceID).
		Return(io.NopCloser(strings.NewReader("data")), media, nil)

	w := f.do(http.MethodGet, "/api/media/md1", nil)

	req.Equal(http.StatusOK, w.Code)
	req.Equal("image/png", w.Header().Get("Content-Type"))
	req.Equal("data", w.Body.String())
}

func TestMonitoring_Stats(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	w := f.do(http.MethodGet, "/monitoring/stats", nil)

	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `"goroutines":7`)
}
