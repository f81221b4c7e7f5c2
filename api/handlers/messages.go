package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/api"
	"github.com/BaSui01/agentcoord/coordinator"
	"github.com/BaSui01/agentcoord/message"
	"github.com/BaSui01/agentcoord/types"
)

// defaultSender API 发出的直接消息默认发送方
const defaultSender = "operator"

// MessageHandler 直接消息
type MessageHandler struct {
	engine *coordinator.Engine
	logger *zap.Logger
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(engine *coordinator.Engine, logger *zap.Logger) *MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageHandler{engine: engine, logger: logger}
}

// HandleSend 入队一条直接消息，下一个周期投递
// @Summary 发送消息
// @Tags 消息
// @Accept json
// @Produce json
// @Param request body api.SendMessageRequest true "消息"
// @Success 202 {object} Response{data=api.SendMessageResponse} "已入队"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /api/v1/messages [post]
func (h *MessageHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.SendMessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.Recipient = strings.TrimSpace(req.Recipient)
	if req.Recipient == "" {
		WriteError(w, types.NewInvalidRequestError("recipient is required"), h.logger)
		return
	}
	if req.Sender == "" {
		req.Sender = defaultSender
	}

	var opts []message.Option
	if req.Priority > 0 {
		opts = append(opts, message.WithPriority(req.Priority))
	}
	if req.RequiresResponse || req.ResponseDeadline != nil {
		opts = append(opts, message.WithResponse(req.ResponseDeadline))
	}

	known := h.engine.KnownRecipient(req.Recipient)
	msg, err := h.engine.Send(req.Sender, req.Recipient, message.Direct{Subject: req.Subject, Body: req.Body}, opts...)
	if err != nil {
		WriteError(w, types.WrapError(err, types.ErrServiceUnavailable, "message router closed"), h.logger)
		return
	}
	if !known {
		h.logger.Warn("message queued for unknown recipient",
			zap.String("message_id", msg.ID),
			zap.String("recipient", req.Recipient),
		)
	}
	WriteStatus(w, http.StatusAccepted, api.SendMessageResponse{
		MessageID:      msg.ID,
		RecipientKnown: known,
	})
}
