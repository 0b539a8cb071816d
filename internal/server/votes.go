package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type voteReceiptPayload struct {
	GroupCode      string `json:"group_code"`
	CandidateID    uint   `json:"candidate_id"`
	Votes          int64  `json:"votes"`
	VotesUsed      int    `json:"votes_used"`
	VotesRemaining int    `json:"votes_remaining"`
	CastAtSeconds  int64  `json:"cast_at_s"`
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	code, ok := h.groupCodeParam(c)
	if !ok {
		return
	}
	candidateID, ok := h.candidateIDParam(c)
	if !ok {
		return
	}
	claims, ok := deviceClaims(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized"})
		return
	}
	voter, err := claims.Voter(code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	receipt, err := h.votingService.CastVote(c.Request.Context(), code, candidateID, voter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(code, RealtimeEventTallyChanged, uint(receipt.CandidateID))
	c.JSON(http.StatusCreated, voteReceiptPayload{
		GroupCode:      receipt.GroupCode.String(),
		CandidateID:    uint(receipt.CandidateID),
		Votes:          receipt.Votes,
		VotesUsed:      receipt.VotesUsed,
		VotesRemaining: max(receipt.VotesAllowed-receipt.VotesUsed, 0),
		CastAtSeconds:  receipt.CastAt.Unix(),
	})
}
