package web

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/comigor/agentgraph-go/internal/catalog"
	"github.com/comigor/agentgraph-go/internal/config"
	"github.com/comigor/agentgraph-go/internal/logger"
	"github.com/comigor/agentgraph-go/internal/session"
	"github.com/comigor/agentgraph-go/internal/vectordb"
)

// SessionCookie carries the chat session id.
const SessionCookie = "agentgraph_session"

const sessionMaxAge = 30 * 24 * 60 * 60

// Sessions is the chat state the handler drives. *session.Manager satisfies it.
type Sessions interface {
	Get(ctx context.Context, id string) session.State
	Send(ctx context.Context, id, prompt string) (session.Turn, error)
	Clear(ctx context.Context, id string)
	Stats(ctx context.Context, id string) session.Stats
}

// Databases is the collection management the handler exposes. *catalog.Catalog satisfies it.
type Databases interface {
	APIKeyReady() bool
	Overview() (catalog.Overview, error)
	Create(ctx context.Context, key string) (vectordb.Report, error)
	CreateAll(ctx context.Context) ([]catalog.Result, error)
	ClearCache(ctx context.Context) (int, error)
}

type Handler struct {
	sessions  Sessions
	databases Databases
	imagesDir string
}

func NewHandler(sessions Sessions, databases Databases, imagesDir string) *Handler {
	return &Handler{sessions: sessions, databases: databases, imagesDir: imagesDir}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/", h.index)
	if h.imagesDir != "" && vectordb.Exists(h.imagesDir) {
		r.Static("/images", h.imagesDir)
	}

	api := r.Group("/api")
	{
		api.GET("/chat", h.chat)
		api.POST("/chat", h.send)
		api.DELETE("/chat", h.clear)

		api.GET("/databases", h.databasesStatus)
		api.POST("/databases", h.createAll)
		api.DELETE("/databases/cache", h.clearCache)
		api.POST("/databases/:name", h.create)
	}
}

type turnView struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Avatar  string `json:"avatar"`
	Image   bool   `json:"image"`
}

type chatResponse struct {
	Messages []turnView    `json:"messages"`
	Stats    session.Stats `json:"stats"`
}

func (h *Handler) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"title": "AgentGraph"})
}

func (h *Handler) chat(c *gin.Context) {
	id := sessionID(c)
	c.JSON(http.StatusOK, h.chatState(c.Request.Context(), id))
}

func (h *Handler) send(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := sessionID(c)
	if _, err := h.sessions.Send(c.Request.Context(), id, req.Prompt); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrEmptyPrompt) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.chatState(c.Request.Context(), id))
}

func (h *Handler) clear(c *gin.Context) {
	id := sessionID(c)
	h.sessions.Clear(c.Request.Context(), id)
	c.JSON(http.StatusOK, h.chatState(c.Request.Context(), id))
}

func (h *Handler) chatState(ctx context.Context, id string) chatResponse {
	st := h.sessions.Get(ctx, id)
	views := make([]turnView, 0, len(st.Messages))
	for _, t := range st.Messages {
		views = append(views, h.view(t))
	}
	return chatResponse{Messages: views, Stats: h.sessions.Stats(ctx, id)}
}

// view maps an on-disk avatar path to its URL under /images.
func (h *Handler) view(t session.Turn) turnView {
	v := turnView{Role: t.Role, Content: t.Content, Avatar: t.Avatar}
	if strings.HasSuffix(strings.ToLower(t.Avatar), ".png") {
		v.Avatar = "/images/" + filepath.Base(t.Avatar)
		v.Image = true
	}
	return v
}

func (h *Handler) databasesStatus(c *gin.Context) {
	ov, err := h.databases.Overview()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": configError(err), "api_key_ready": ov.APIKeyReady})
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (h *Handler) create(c *gin.Context) {
	if !h.databases.APIKeyReady() {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": catalog.ErrMissingAPIKey.Error()})
		return
	}
	name := c.Param("name")
	rep, err := h.databases.Create(c.Request.Context(), name)
	if err != nil {
		var be *catalog.BuildError
		switch {
		case errors.Is(err, catalog.ErrMissingAPIKey):
			c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
		case errors.Is(err, config.ErrUnknownCollection):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.As(err, &be):
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": configError(err)})
		}
		return
	}
	logger.L.Info("Vector database created via API", "collection", name, "chunks", rep.Chunks)
	c.JSON(http.StatusOK, gin.H{"report": rep})
}

func (h *Handler) createAll(c *gin.Context) {
	if !h.databases.APIKeyReady() {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": catalog.ErrMissingAPIKey.Error()})
		return
	}
	results, err := h.databases.CreateAll(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		msg := configError(err)
		if errors.Is(err, catalog.ErrMissingAPIKey) {
			status, msg = http.StatusPreconditionFailed, err.Error()
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) clearCache(c *gin.Context) {
	n, err := h.databases.ClearCache(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

func configError(err error) string {
	return "Could not load config: " + err.Error()
}

// sessionID returns the caller's session id, issuing a new cookie when absent.
func sessionID(c *gin.Context) string {
	if id, err := c.Cookie(SessionCookie); err == nil {
		if _, perr := uuid.Parse(id); perr == nil {
			return id
		}
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, id, sessionMaxAge, "/", "", false, true)
	return id
}
