package chat

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	chatService "github.com/zhouzirui/z-tavern/chatbot/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/visibility"
	"github.com/zhouzirui/z-tavern/chatbot/pkg/utils"
)

// Handler 聊天组件的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	enabled  bool
	policy   visibility.Policy
	upgrader websocket.Upgrader
	timeouts wsTimeouts
}

// New 创建聊天处理器；enabled 为 false 时聊天接口统一返回 503。
// allowedOrigins 与 CORS 配置一致，用于校验 WebSocket 握手来源
func New(chatSvc *chatService.Service, enabled bool, policy visibility.Policy, allowedOrigins []string) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		enabled: enabled,
		policy:  policy,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		timeouts: wsTimeouts{
			read:  defaultReadTimeout,
			ping:  defaultPingInterval,
			write: defaultWriteTimeout,
		},
	}
}

// originChecker 仅放行配置中的来源；"*" 放行全部，无 Origin 头的非浏览器客户端直接放行
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/visibility", h.handleVisibility)

	r.Group(func(r chi.Router) {
		r.Use(h.requireEnabled)
		r.Post("/conversations", h.handleStartConversation)
		r.Get("/conversations/{conversationID}", h.handleTranscript)
		r.Delete("/conversations/{conversationID}", h.handleEndConversation)
		r.Post("/conversations/{conversationID}/messages", h.handleSendMessage)
		r.Get("/ws", h.handleWebSocket)
	})
}

// requireEnabled 未配置 webhook 时拒绝请求
func (h *Handler) requireEnabled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.enabled || h.chatSvc == nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "chat disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleVisibility 判断当前页面是否显示聊天组件
func (h *Handler) handleVisibility(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	utils.RespondJSON(w, http.StatusOK, map[string]bool{
		"enabled": h.enabled,
		"visible": h.enabled && h.policy.Allowed(path),
	})
}

// handleStartConversation 创建会话，返回带问候语的消息列表
func (h *Handler) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	conversation := h.chatSvc.StartConversation(r.Context())
	utils.RespondJSON(w, http.StatusCreated, conversation)
}

// handleTranscript 获取会话消息
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	conversation, err := h.chatSvc.Transcript(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, conversation)
}

// handleEndConversation 页面关闭时释放会话
func (h *Handler) handleEndConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.EndConversation(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage 发送用户消息并返回机器人回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chatSvc.Send(r.Context(), chi.URLParam(r, "conversationID"), payload.Text)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"message": reply})
}

// statusFor 将服务错误映射为HTTP状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrSessionNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
