package api

import (
	"context"
	"log/slog"
	"strings"

	"papers/app/agent"
	"papers/search"

	"github.com/gofiber/websocket/v2"
)

// doneMarker closes every streamed answer so clients know the turn
// ended.
const doneMarker = "[DONE]"

type ChatHandler struct {
	engine *search.Engine
	agent  *agent.Agent
	logger *slog.Logger
}

func NewChatHandler(engine *search.Engine, a *agent.Agent, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		engine: engine,
		agent:  a,
		logger: logger,
	}
}

// HandleChat runs the RAG chat loop over one WebSocket connection:
// each text frame is a question, answered with a streamed completion
// grounded in hybrid-retrieved chunks.
func (h *ChatHandler) HandleChat(conn *websocket.Conn) {
	defer conn.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			h.logger.Info("[CHAT] connection closed", "error", err)
			return
		}

		question := strings.TrimSpace(string(msg))
		if question == "" {
			continue
		}

		if err := h.answer(ctx, conn, question); err != nil {
			h.logger.Error("[CHAT] failed to answer", "error", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte("an error occurred, please try again"))
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(doneMarker)); err != nil {
			return
		}
	}
}

func (h *ChatHandler) answer(ctx context.Context, conn *websocket.Conn, question string) error {
	opts := search.DefaultOptions()
	opts.TopK = 3
	opts.Limit = 3

	result, err := h.engine.Search(ctx, question, opts)
	if err != nil {
		return err
	}
	if len(result.Results) == 0 {
		return conn.WriteMessage(websocket.TextMessage, []byte("no relevant papers found for this question"))
	}

	contextText, used := h.agent.BuildContext(result.Results)
	h.logger.Info("[CHAT] answering", "question_len", len(question), "context_chunks", len(used), "degraded", result.Degraded)

	return h.agent.StreamAnswer(ctx, contextText, question, func(delta string) error {
		return conn.WriteMessage(websocket.TextMessage, []byte(delta))
	})
}
