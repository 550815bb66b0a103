// Package api exposes the engine to the presentation layer: a small gin
// surface with the three commands plus snapshot reads, and a websocket that
// streams composed view models.
package api

import (
	"net/http"

	"PulseChat/logger"
	mid "PulseChat/middleware"
	"PulseChat/module/chat/state"
	"PulseChat/service/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	engine   *state.Engine
	sessions *session.Provider
}

func NewServer(engine *state.Engine, sessions *session.Provider) *Server {
	return &Server{engine: engine, sessions: sessions}
}

func (s *Server) Register(r *gin.Engine) {
	mid.POST(r, s.sessions, "/api/login", s.handleLogin, mid.RouteOpt{})

	mid.GET(r, s.sessions, "/api/state", s.handleState, mid.RouteOpt{IsAuth: true})
	mid.GET(r, s.sessions, "/api/rooms", s.handleRooms, mid.RouteOpt{IsAuth: true})
	mid.GET(r, s.sessions, "/api/dms", s.handleDMs, mid.RouteOpt{IsAuth: true})
	mid.POST(r, s.sessions, "/api/send", s.handleSend, mid.RouteOpt{IsAuth: true})
	mid.POST(r, s.sessions, "/api/select", s.handleSelect, mid.RouteOpt{IsAuth: true})
	mid.POST(r, s.sessions, "/api/dm", s.handleStartDM, mid.RouteOpt{IsAuth: true})
	mid.GET(r, s.sessions, "/api/ws", s.handleWS, mid.RouteOpt{IsAuth: true})
}

type loginReq struct {
	UserID string `json:"user_id" binding:"required"`
	Email  string `json:"email"`
}

// handleLogin issues a signed session token. The production token issuer is
// the platform's auth service; this endpoint stands in for local development.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}
	token, exp, err := s.sessions.Generate(req.UserID, req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": exp})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.View().Get())
}

func (s *Server) handleRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.engine.Directory.Rooms().Get()})
}

func (s *Server) handleDMs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"dms": s.engine.Directory.DirectConversations().Get()})
}

type sendReq struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) handleSend(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}
	if err := s.engine.Send(c.Request.Context(), req.Content); err != nil {
		// the optimistic entry is already rolled back
		c.JSON(http.StatusOK, gin.H{"code": 1002, "msg": "send failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0})
}

type selectReq struct {
	ID string `json:"id" binding:"required"`
}

func (s *Server) handleSelect(c *gin.Context) {
	var req selectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}
	roomID, err := s.engine.SelectConversation(c.Request.Context(), req.ID)
	if err != nil {
		logger.Error("select failed", zap.String("id", req.ID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"code": 1103, "msg": "selection failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "room_id": roomID})
}

type dmReq struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

func (s *Server) handleStartDM(c *gin.Context) {
	var req dmReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}
	roomID, err := s.engine.StartOrOpenDirectConversation(c.Request.Context(), req.ParticipantID)
	if err != nil {
		logger.Error("start dm failed", zap.String("participant", req.ParticipantID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"code": 1103, "msg": "dm resolution failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "room_id": roomID})
}
