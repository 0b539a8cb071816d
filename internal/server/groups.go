package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dinnervote/backend/internal/session"
	"github.com/dinnervote/backend/internal/voting"
)

type createGroupRequest struct {
	Name           string `json:"name"`
	EventAt        string `json:"event_at"`
	VoteDeadline   string `json:"vote_deadline"`
	VotesPerPerson int    `json:"votes_per_person"`
}

type groupPayload struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	EventAt        string `json:"event_at,omitempty"`
	VoteDeadline   string `json:"vote_deadline,omitempty"`
	VotesPerPerson int    `json:"votes_per_person"`
}

type candidateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Hours   string `json:"hours"`
	MenuURL string `json:"menu_url"`
}

type candidatePayload struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Hours   string `json:"hours,omitempty"`
	MenuURL string `json:"menu_url,omitempty"`
	Votes   int64  `json:"votes"`
}

type ballotPayload struct {
	Nickname    string `json:"nickname"`
	CandidateID uint   `json:"candidate_id"`
}

type pollViewPayload struct {
	groupPayload
	Closed         bool               `json:"closed"`
	DeadlineIn     string             `json:"deadline_in,omitempty"`
	Candidates     []candidatePayload `json:"candidates"`
	Tally          map[uint]int64     `json:"tally"`
	Winners        []uint             `json:"winners"`
	Ballots        []ballotPayload    `json:"ballots"`
	MyVotes        []uint             `json:"my_votes"`
	VotesRemaining int                `json:"votes_remaining"`
	Nickname       string             `json:"nickname"`
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

func (h *httpHandler) handleCreateGroup(c *gin.Context) {
	var request createGroupRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}

	created, err := h.votingService.CreatePollGroup(c.Request.Context(), request.Name, voting.PollConfigInput{
		EventLocal:     request.EventAt,
		DeadlineLocal:  request.VoteDeadline,
		VotesPerPerson: request.VotesPerPerson,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.newGroupPayload(created.Group, &created.Config))
}

func (h *httpHandler) handlePollView(c *gin.Context) {
	code, ok := h.groupCodeParam(c)
	if !ok {
		return
	}
	claims, _ := deviceClaims(c)

	view, err := h.votingService.Results(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var myVotes []voting.CandidateID
	if deviceID, err := voting.NewDeviceID(claims.DeviceID); err == nil {
		myVotes, err = h.votingService.DeviceVotes(c.Request.Context(), code, deviceID)
		if err != nil {
			h.respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, h.newPollViewPayload(view, myVotes, claims.Nickname(session.ScopeVote, code)))
}

func (h *httpHandler) handleAddCandidate(c *gin.Context) {
	code, ok := h.groupCodeParam(c)
	if !ok {
		return
	}
	var request candidateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}

	candidate, err := h.votingService.AddCandidate(c.Request.Context(), code, voting.CandidateInput{
		Name:    request.Name,
		Phone:   request.Phone,
		Hours:   request.Hours,
		MenuURL: request.MenuURL,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(code, RealtimeEventCandidatesChanged, candidate.ID)
	c.JSON(http.StatusCreated, newCandidatePayload(candidate, 0))
}

func (h *httpHandler) handleListCandidates(c *gin.Context) {
	code, ok := h.groupCodeParam(c)
	if !ok {
		return
	}
	candidates, err := h.votingService.Candidates(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]candidatePayload, 0, len(candidates))
	for _, candidate := range candidates {
		payload = append(payload, newCandidatePayload(candidate, 0))
	}
	c.JSON(http.StatusOK, gin.H{"candidates": payload})
}

func (h *httpHandler) handleRemoveCandidate(c *gin.Context) {
	code, ok := h.groupCodeParam(c)
	if !ok {
		return
	}
	candidateID, ok := h.candidateIDParam(c)
	if !ok {
		return
	}
	if err := h.votingService.RemoveCandidate(c.Request.Context(), code, candidateID); err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(code, RealtimeEventCandidatesChanged, uint(candidateID))
	h.publish(code, RealtimeEventTallyChanged, uint(candidateID))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSetNickname(c *gin.Context) {
	code, ok := h.groupCodeParam(c)
	if !ok {
		return
	}
	var request nicknameRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	if _, err := h.votingService.FindGroup(c.Request.Context(), code); err != nil {
		h.respondError(c, err)
		return
	}

	claims, _ := deviceClaims(c)
	updated := claims.WithNickname(session.ScopeVote, code, request.Nickname)
	if err := h.writeSession(c, updated); err != nil {
		h.logger.Error("failed to store nickname", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "session_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nickname": updated.Nickname(session.ScopeVote, code).String()})
}

func (h *httpHandler) groupCodeParam(c *gin.Context) (voting.GroupCode, bool) {
	code, err := voting.NewGroupCode(c.Param("code"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{Error: "invalid_group_code"})
		return "", false
	}
	return code, true
}

func (h *httpHandler) candidateIDParam(c *gin.Context) (voting.CandidateID, bool) {
	raw, err := strconv.ParseInt(c.Param("candidateID"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{Error: "invalid_candidate_id"})
		return 0, false
	}
	candidateID, err := voting.NewCandidateID(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{Error: "invalid_candidate_id"})
		return 0, false
	}
	return candidateID, true
}

func (h *httpHandler) publish(code voting.GroupCode, eventType string, candidateIDs ...uint) {
	h.realtime.Publish(RealtimeMessage{
		GroupCode:    code.String(),
		EventType:    eventType,
		CandidateIDs: candidateIDs,
		Timestamp:    time.Now().UTC(),
	})
}

func (h *httpHandler) formatLocal(value time.Time) string {
	return value.In(h.votingService.Location()).Format(time.RFC3339)
}

func (h *httpHandler) newGroupPayload(group voting.PollGroup, config *voting.PollConfig) groupPayload {
	payload := groupPayload{
		Code:           group.Code,
		Name:           group.Name,
		VotesPerPerson: 1,
	}
	if config != nil {
		payload.EventAt = h.formatLocal(config.EventAt())
		payload.VoteDeadline = h.formatLocal(config.VoteDeadline())
		payload.VotesPerPerson = config.Quota()
	}
	return payload
}

func (h *httpHandler) newPollViewPayload(view voting.PollView, myVotes []voting.CandidateID, nickname voting.Nickname) pollViewPayload {
	payload := pollViewPayload{
		groupPayload: h.newGroupPayload(view.Group, view.Config),
		Closed:       view.Closed,
		Candidates:   make([]candidatePayload, 0, len(view.Candidates)),
		Tally:        make(map[uint]int64, len(view.Tally)),
		Winners:      make([]uint, 0, len(view.Winners)),
		Ballots:      make([]ballotPayload, 0, len(view.Ballots)),
		MyVotes:      make([]uint, 0, len(myVotes)),
		Nickname:     nickname.String(),
	}
	if view.Config != nil && !view.Closed {
		payload.DeadlineIn = humanize.RelTime(view.Config.VoteDeadline(), view.Now, "ago", "from now")
	}
	for _, candidate := range view.Candidates {
		payload.Candidates = append(payload.Candidates, newCandidatePayload(candidate, view.Tally[voting.CandidateID(candidate.ID)]))
	}
	for candidateID, votes := range view.Tally {
		payload.Tally[uint(candidateID)] = votes
	}
	for _, winner := range view.Winners {
		payload.Winners = append(payload.Winners, uint(winner))
	}
	for _, ballot := range view.Ballots {
		payload.Ballots = append(payload.Ballots, ballotPayload{Nickname: ballot.Nickname, CandidateID: ballot.CandidateID})
	}
	for _, candidateID := range myVotes {
		payload.MyVotes = append(payload.MyVotes, uint(candidateID))
	}
	payload.VotesRemaining = max(payload.VotesPerPerson-len(myVotes), 0)
	if view.Closed {
		payload.VotesRemaining = 0
	}
	return payload
}

func newCandidatePayload(candidate voting.Candidate, votes int64) candidatePayload {
	return candidatePayload{
		ID:      candidate.ID,
		Name:    candidate.Name,
		Phone:   candidate.Phone,
		Hours:   candidate.Hours,
		MenuURL: candidate.MenuURL,
		Votes:   votes,
	}
}
