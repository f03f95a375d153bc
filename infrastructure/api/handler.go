package api

import (
	"bourracho/auth"
	"bourracho/domain"
	"bourracho/domain/mimetypes"
	"bourracho/errors"
	"bourracho/medias"
	"bourracho/services"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const defaultSearchLimit = 20

type Handler struct {
	log            *slog.Logger
	users          services.IAuthService
	membership     services.IMembershipService
	chat           services.IChatService
	maxUploadBytes int64
}

func NewHandler(log *slog.Logger, users services.IAuthService, membership services.IMembershipService,
	chat services.IChatService, maxUploadBytes int64) *Handler {
	return &Handler{log: log, users: users, membership: membership, chat: chat, maxUploadBytes: maxUploadBytes}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type conversationCreateRequest struct {
	Name      string `json:"name"`
	IsLocked  bool   `json:"is_locked"`
	IsVisible bool   `json:"is_visible"`
}

type conversationUpdateRequest struct {
	Name      *string `json:"name"`
	IsLocked  *bool   `json:"is_locked"`
	IsVisible *bool   `json:"is_visible"`
	AdminID   *string `json:"admin_id"`
}

type memberUpdateRequest struct {
	Pseudo *string `json:"pseudo"`
	Smiley *string `json:"smiley"`
}

type messagePostRequest struct {
	Content string `json:"content"`
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

// messageUpdateRequest applies, in order, reactions, votes and a new content.
type messageUpdateRequest struct {
	ID      string            `json:"id"`
	Reacts  []reactRequest    `json:"reacts"`
	Votes   map[string]string `json:"votes"`
	Content *string           `json:"content"`
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if !h.bind(c, &req) {
		return
	}
	user, err := h.users.Register(req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.users.Login(req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Users lists every user, or only the ones named by repeated users_ids parameters.
func (h *Handler) Users(c *gin.Context) {
	ids := lo.Reject(c.QueryArray("users_ids"), func(id string, _ int) bool { return id == "" || id == "*" })
	var (
		users []domain.User
		err   error
	)
	if len(ids) == 0 {
		users, err = h.users.List()
	} else {
		users, err = h.users.GetManyByIDs(ids)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(users))
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req conversationCreateRequest
	if !h.bind(c, &req) {
		return
	}
	conversation, err := h.membership.Create(c.Request.Context(), auth.MustUserID(c), req.Name, req.IsLocked, req.IsVisible)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *Handler) ListConversations(c *gin.Context) {
	conversations, err := h.membership.ListForUser(auth.MustUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(conversations))
}

func (h *Handler) GetConversation(c *gin.Context) {
	conversation, err := h.membership.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *Handler) UpdateConversation(c *gin.Context) {
	var req conversationUpdateRequest
	if !h.bind(c, &req) {
		return
	}
	update := domain.MetadataUpdate{Name: req.Name, IsLocked: req.IsLocked, IsVisible: req.IsVisible, AdminID: req.AdminID}
	conversation, err := h.membership.UpdateMetadata(c.Request.Context(), c.Param("id"), update, auth.MustUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	conversationID := c.Param("id")
	if err := h.membership.Delete(c.Request.Context(), auth.MustUserID(c), conversationID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Conversation deleted successfully",
		"data":    gin.H{"conversation_id": conversationID},
	})
}

func (h *Handler) JoinConversation(c *gin.Context) {
	conversation, err := h.membership.Join(c.Request.Context(), c.Param("id"), auth.MustUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *Handler) LeaveConversation(c *gin.Context) {
	conversation, err := h.membership.Leave(c.Request.Context(), c.Param("id"), auth.MustUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *Handler) UpdateMember(c *gin.Context) {
	var req memberUpdateRequest
	if !h.bind(c, &req) {
		return
	}
	profile, err := h.membership.UpdateMember(c.Request.Context(), c.Param("id"), auth.MustUserID(c),
		domain.MemberUpdate{Pseudo: req.Pseudo, Smiley: req.Smiley})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) ListMessages(c *gin.Context) {
	var limit *int
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(c, fmt.Errorf("%w: limit must be a positive integer", errors.ErrInvalidArgument))
			return
		}
		limit = &n
	}
	messages, err := h.chat.List(c.Request.Context(), c.Param("id"), auth.MustUserID(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(messages))
}

// PostMessage accepts a JSON body, or a multipart form with a "content"
// field and "medias" files.
func (h *Handler) PostMessage(c *gin.Context) {
	var (
		content string
		uploads []medias.Upload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			h.fail(c, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err))
			return
		}
		content = c.PostForm("content")
		for _, file := range form.File["medias"] {
			upload, err := h.readUpload(file)
			if err != nil {
				h.fail(c, err)
				return
			}
			uploads = append(uploads, upload)
		}
	} else {
		var req messagePostRequest
		if !h.bind(c, &req) {
			return
		}
		content = req.Content
	}

	message, err := h.chat.Post(c.Request.Context(), c.Param("id"), auth.MustUserID(c), content, uploads)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *Handler) UpdateMessage(c *gin.Context) {
	var req messageUpdateRequest
	if !h.bind(c, &req) {
		return
	}
	if req.ID == "" {
		h.fail(c, fmt.Errorf("%w: message id is required", errors.ErrInvalidArgument))
		return
	}
	if len(req.Reacts) == 0 && len(req.Votes) == 0 && req.Content == nil {
		h.fail(c, fmt.Errorf("%w: nothing to update", errors.ErrInvalidArgument))
		return
	}

	ctx := c.Request.Context()
	userID := auth.MustUserID(c)
	message, err := h.chat.Get(ctx, req.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if message.ConversationID != c.Param("id") {
		h.fail(c, fmt.Errorf("%w: message %s in conversation %s", errors.ErrNotFound, req.ID, c.Param("id")))
		return
	}

	for _, react := range req.Reacts {
		if message, err = h.chat.React(ctx, req.ID, react.Emoji, userID); err != nil {
			h.fail(c, err)
			return
		}
	}
	if len(req.Votes) > 0 {
		if message, err = h.chat.Vote(ctx, req.ID, userID, req.Votes); err != nil {
			h.fail(c, err)
			return
		}
	}
	if req.Content != nil {
		if message, err = h.chat.Edit(ctx, req.ID, *req.Content, userID); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, message)
}

func (h *Handler) SearchMessages(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		h.fail(c, fmt.Errorf("%w: q is required", errors.ErrInvalidArgument))
		return
	}
	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(c, fmt.Errorf("%w: limit must be a positive integer", errors.ErrInvalidArgument))
			return
		}
		limit = n
	}
	messages, err := h.chat.Search(c.Request.Context(), c.Param("id"), auth.MustUserID(c), query, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(messages))
}

// Media streams a stored file to a member of its conversation.
func (h *Handler) Media(c *gin.Context) {
	content, media, err := h.chat.MediaContent(c.Request.Context(), c.Param("mediaId"), auth.MustUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	defer func() {
		if err := content.Close(); err != nil {
			h.log.Warn("Failed to close media", "media_id", media.ID, "error", err)
		}
	}()
	c.DataFromReader(http.StatusOK, media.Size, contentType(media), content, nil)
}

func (h *Handler) readUpload(file *multipart.FileHeader) (medias.Upload, error) {
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		return medias.Upload{}, fmt.Errorf("%w: %s exceeds %d bytes", errors.ErrInvalidArgument, file.Filename, h.maxUploadBytes)
	}
	f, err := file.Open()
	if err != nil {
		return medias.Upload{}, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	defer func() { _ = f.Close() }()
	content, err := io.ReadAll(f)
	if err != nil {
		return medias.Upload{}, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return medias.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, fmt.Errorf("%w: invalid body: %v", errors.ErrInvalidArgument, err))
		return false
	}
	return true
}

// fail writes err with the status of its kind.
func (h *Handler) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
	} else {
		h.log.Debug("Request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": err.Error(), "kind": errors.KindOf(err).String()})
}

func contentType(media domain.MediaMetadata) string {
	if t := mimetypes.FromExtension(media.Key); t != "" {
		return t
	}
	return "application/octet-stream"
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
