package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campusops/internal/attendance"
	"campusops/internal/identity"
	"campusops/internal/metrics"
	"campusops/internal/queue"
	"campusops/internal/schedule"
	"campusops/internal/timeutil"
)

// SummarySource provides the per-student counters shown in scan responses.
type SummarySource interface {
	CountEntriesToday(ctx context.Context, studentID string, date time.Time) (int, error)
}

// Handler holds the collaborators behind the HTTP surface.
type Handler struct {
	sessions   *schedule.Service
	scans      *attendance.Service
	resolver   *identity.Resolver
	passkeys   *identity.PasskeyIssuer
	challenges *identity.ChallengeCache
	summaries  SummarySource
	audit      queue.Queue
	now        func() time.Time
}

// New wires a handler. audit and summaries may be nil; the scan path then
// skips the audit publish and the student summary counter.
func New(sessions *schedule.Service, scans *attendance.Service, resolver *identity.Resolver,
	passkeys *identity.PasskeyIssuer, challenges *identity.ChallengeCache,
	summaries SummarySource, audit queue.Queue) *Handler {
	return &Handler{
		sessions:   sessions,
		scans:      scans,
		resolver:   resolver,
		passkeys:   passkeys,
		challenges: challenges,
		summaries:  summaries,
		audit:      audit,
		now:        time.Now,
	}
}

// ---------- Sessions ----------

type sessionRequest struct {
	ModuleID   string `json:"module_id" binding:"required"`
	BatchID    string `json:"batch_id" binding:"required"`
	LecturerID string `json:"lecturer_id" binding:"required"`
	CenterID   string `json:"center_id" binding:"required"`
	Room       string `json:"room" binding:"required"`
	Date       string `json:"date" binding:"required"`
	StartTime  string `json:"start_time" binding:"required"`
	EndTime    string `json:"end_time" binding:"required"`
	Delivery   string `json:"delivery"`
}

func (req sessionRequest) toInput() (schedule.Input, error) {
	date, err := timeutil.ParseDate(req.Date)
	if err != nil {
		return schedule.Input{}, errors.New("date must be YYYY-MM-DD")
	}
	start, err := timeutil.ParseClock(req.StartTime)
	if err != nil {
		return schedule.Input{}, err
	}
	end, err := timeutil.ParseClock(req.EndTime)
	if err != nil {
		return schedule.Input{}, err
	}
	delivery := req.Delivery
	if delivery == "" {
		delivery = "physical"
	}
	return schedule.Input{
		ModuleID:   req.ModuleID,
		BatchID:    req.BatchID,
		LecturerID: req.LecturerID,
		CenterID:   req.CenterID,
		Room:       req.Room,
		Date:       date,
		StartMin:   start,
		EndMin:     end,
		Delivery:   delivery,
	}, nil
}

type sessionResponse struct {
	ID         string `json:"id"`
	ModuleID   string `json:"module_id"`
	BatchID    string `json:"batch_id"`
	LecturerID string `json:"lecturer_id"`
	CenterID   string `json:"center_id"`
	Room       string `json:"room"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
	Delivery   string `json:"delivery"`
}

func toSessionResponse(s schedule.Session) sessionResponse {
	return sessionResponse{
		ID:         s.ID,
		ModuleID:   s.ModuleID,
		BatchID:    s.BatchID,
		LecturerID: s.LecturerID,
		CenterID:   s.CenterID,
		Room:       s.Room,
		Date:       timeutil.FormatDate(s.Date),
		StartTime:  timeutil.FormatClock(s.StartMin),
		EndTime:    timeutil.FormatClock(s.EndMin),
		Status:     string(s.Status),
		Delivery:   s.Delivery,
	}
}

type conflictEntry struct {
	Kind       string `json:"kind"`
	SessionID  string `json:"session_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	LecturerID string `json:"lecturer_id,omitempty"`
	Room       string `json:"room,omitempty"`
	CenterID   string `json:"center_id,omitempty"`
}

func toConflictEntries(cs []schedule.Conflict) []conflictEntry {
	out := make([]conflictEntry, 0, len(cs))
	for _, c := range cs {
		out = append(out, conflictEntry{
			Kind:       string(c.Kind),
			SessionID:  c.SessionID,
			StartTime:  timeutil.FormatClock(c.StartMin),
			EndTime:    timeutil.FormatClock(c.EndMin),
			LecturerID: c.LecturerID,
			Room:       c.Room,
			CenterID:   c.CenterID,
		})
	}
	return out
}

// CreateSession schedules a new class session after the conflict check.
func (h *Handler) CreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": err.Error()})
		return
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": err.Error()})
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), in)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

// UpdateSession edits a session with the same conflict discipline.
func (h *Handler) UpdateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": err.Error()})
		return
	}
	in, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": err.Error()})
		return
	}
	sess, err := h.sessions.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// CancelSession moves a scheduled session to CANCELLED.
func (h *Handler) CancelSession(c *gin.Context) {
	if err := h.sessions.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.sessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteSession removes a session unless attendance references it.
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.sessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSessions returns filtered sessions; finished ones are auto-advanced
// first inside the service.
func (h *Handler) ListSessions(c *gin.Context) {
	f := schedule.Filter{
		LecturerID: c.Query("lecturer_id"),
		BatchID:    c.Query("batch_id"),
		Status:     schedule.Status(c.Query("status")),
	}
	if v := c.Query("date"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": "date must be YYYY-MM-DD"})
			return
		}
		f.Date = &d
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Offset = parsed
		}
	}

	sessions, err := h.sessions.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// SessionStats reports per-status counts for a date range.
func (h *Handler) SessionStats(c *gin.Context) {
	from, err := timeutil.ParseDate(c.DefaultQuery("from", timeutil.FormatDate(h.now().AddDate(0, -1, 0))))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := timeutil.ParseDate(c.DefaultQuery("to", timeutil.FormatDate(h.now())))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": "to must be YYYY-MM-DD"})
		return
	}
	stats, err := h.sessions.Stats(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (h *Handler) sessionError(c *gin.Context, err error) {
	var ce *schedule.ConflictError
	switch {
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, gin.H{
			"code":      "SCHEDULE_CONFLICT",
			"error":     ce.Error(),
			"conflicts": toConflictEntries(ce.Conflicts),
		})
	case errors.Is(err, schedule.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "SESSION_NOT_FOUND", "error": err.Error()})
	case errors.Is(err, schedule.ErrHasAttendance):
		c.JSON(http.StatusBadRequest, gin.H{"code": "HAS_ATTENDANCE", "error": err.Error()})
	case errors.Is(err, schedule.ErrInvalidTime):
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ---------- Scans ----------

type scanRequest struct {
	identity.Payload
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	Timestamp string `json:"timestamp"`
}

type recordResponse struct {
	ID          string     `json:"id"`
	StudentID   string     `json:"student_id"`
	SessionID   string     `json:"session_id"`
	Status      string     `json:"status"`
	EntryTime   time.Time  `json:"entry_time"`
	ExitTime    *time.Time `json:"exit_time,omitempty"`
	FirstMarked time.Time  `json:"first_marked"`
	Remarks     string     `json:"remarks,omitempty"`
}

// Scan turns one raw identity scan into exactly one attendance mutation.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": err.Error()})
		return
	}

	at := h.now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": "timestamp must be RFC3339"})
			return
		}
		at = parsed
	}

	student, err := h.resolver.Resolve(c.Request.Context(), req.Payload)
	if err != nil {
		h.scanError(c, err)
		return
	}

	res, err := h.scans.Scan(c.Request.Context(), student.ID, req.SessionID, at)
	if err != nil {
		h.scanError(c, err)
		return
	}
	metrics.ScansTotal.WithLabelValues(string(res.Action)).Inc()

	if h.audit != nil {
		msg := queue.Message{Type: "scan"}
		msg.Body, _ = json.Marshal(queue.ScanAudit{
			StudentID: student.ID,
			SessionID: res.Session.ID,
			Action:    string(res.Action),
			DeviceID:  req.DeviceID,
			At:        at,
		})
		if err := h.audit.Publish(c.Request.Context(), msg); err != nil {
			log.Printf("scan audit publish failed: %v", err)
		}
	}

	summary := gin.H{"id": student.ID, "full_name": student.FullName}
	if h.summaries != nil {
		if n, err := h.summaries.CountEntriesToday(c.Request.Context(), student.ID, timeutil.DateOf(at)); err == nil {
			summary["entries_today"] = n
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"action": res.Action,
		"record": recordResponse{
			ID:          res.Record.ID,
			StudentID:   res.Record.StudentID,
			SessionID:   res.Record.SessionID,
			Status:      string(res.Record.Status),
			EntryTime:   res.Record.EntryTime,
			ExitTime:    res.Record.ExitTime,
			FirstMarked: res.Record.FirstMarked,
			Remarks:     res.Record.Remarks,
		},
		"student": summary,
	})
}

func (h *Handler) scanError(c *gin.Context, err error) {
	metrics.ScansTotal.WithLabelValues("rejected").Inc()
	switch {
	case errors.Is(err, attendance.ErrNoActiveEnrollment):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "NO_ACTIVE_ENROLLMENT", "error": err.Error()})
	case errors.Is(err, attendance.ErrNoActiveSchedule):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"code": "NO_ACTIVE_SCHEDULE", "error": err.Error()})
	case errors.Is(err, attendance.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "SESSION_NOT_FOUND", "error": err.Error()})
	case errors.Is(err, identity.ErrUnknownIdentity):
		c.JSON(http.StatusNotFound, gin.H{"code": "UNKNOWN_IDENTITY", "error": err.Error()})
	case errors.Is(err, identity.ErrAmbiguousPayload):
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ---------- Identity ----------

// IssuePasskey assigns a fresh 6-digit kiosk passkey to a student.
func (h *Handler) IssuePasskey(c *gin.Context) {
	pk, err := h.passkeys.Issue(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUnknownIdentity):
			c.JSON(http.StatusNotFound, gin.H{"code": "UNKNOWN_IDENTITY", "error": err.Error()})
		case errors.Is(err, identity.ErrPasskeyExhausted):
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"passkey": pk})
}

// IssueChallenge hands a kiosk a one-shot challenge for the credential
// verification flow.
func (h *Handler) IssueChallenge(c *gin.Context) {
	var req struct {
		CredentialID string `json:"credential_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": err.Error()})
		return
	}
	challenge, err := h.challenges.Issue(req.CredentialID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "challenge generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": challenge})
}
