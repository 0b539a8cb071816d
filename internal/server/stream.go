package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type realtimeEventPayload struct {
	GroupCode    string `json:"groupCode"`
	CandidateIDs []uint `json:"candidateIds,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	Source       string `json:"source"`
}

type heartbeatPayload struct {
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// handleStream pushes tally and candidate changes of one group as server-sent events.
func (h *httpHandler) handleStream(c *gin.Context) {
	code, ok := h.groupCodeParam(c)
	if !ok {
		return
	}
	if _, err := h.votingService.FindGroup(c.Request.Context(), code); err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, code.String())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// The first heartbeat flushes headers so clients see the stream open.
	c.SSEvent(realtimeEventHeartbeat, newHeartbeatPayload())
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.Debug("realtime stream opened", zap.String("group_code", code.String()))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				GroupCode:    message.GroupCode,
				CandidateIDs: message.CandidateIDs,
				Timestamp:    message.Timestamp.Unix(),
				Source:       realtimeSourceBackend,
			})
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, newHeartbeatPayload())
			return true
		}
	})
	h.logger.Debug("realtime stream closed", zap.String("group_code", code.String()))
}

func newHeartbeatPayload() heartbeatPayload {
	return heartbeatPayload{Timestamp: time.Now().UTC().Unix(), Source: realtimeSourceBackend}
}
