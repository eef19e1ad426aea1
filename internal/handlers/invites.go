package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Cross4solution/MedGama-sub003/internal/connections"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/telemetry"
)

// InviteHandler exposes the invite lifecycle and the connection graph.
type InviteHandler struct {
	repo    connections.Repository
	emitter *telemetry.AuditEmitter
}

// NewInviteHandler builds an InviteHandler. A nil emitter disables audit records.
func NewInviteHandler(repo connections.Repository, emitter *telemetry.AuditEmitter) *InviteHandler {
	return &InviteHandler{repo: repo, emitter: emitter}
}

// Register mounts the invite and connection routes on an authenticated group.
func (h *InviteHandler) Register(r gin.IRoutes) {
	r.POST("/invites", h.CreateInvite)
	r.GET("/invites", h.ListInvites)
	r.POST("/invites/:id/accept", h.AcceptInvite)
	r.POST("/invites/:id/reject", h.RejectInvite)
	r.POST("/invites/:id/cancel", h.CancelInvite)
	r.GET("/doctors/:id/clinics", h.ClinicsForDoctor)
	r.GET("/clinics/:id/doctors", h.DoctorsForClinic)
}

// CreateInvite stores a new pending invite.
func (h *InviteHandler) CreateInvite(c *gin.Context) {
	var opts connections.CreateInviteOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	fromType, err := models.ParseActorKind(string(opts.FromType))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	toType, err := models.ParseActorKind(string(opts.ToType))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if fromType == toType {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invite must link a doctor and a clinic"})
		return
	}
	opts.FromType, opts.ToType = fromType, toType
	opts.FromID = strings.TrimSpace(opts.FromID)
	opts.ToID = strings.TrimSpace(opts.ToID)
	if opts.FromID == "" || opts.ToID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fromId and toId are required"})
		return
	}

	result, err := h.repo.CreateInvite(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create invite"})
		return
	}
	if !result.OK {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// ListInvites returns every invite, or only those involving one actor.
func (h *InviteHandler) ListInvites(c *gin.Context) {
	actorType, actorID := c.Query("actorType"), strings.TrimSpace(c.Query("actorId"))
	if actorType == "" && actorID == "" {
		c.JSON(http.StatusOK, gin.H{"invites": h.repo.LoadInvites(c.Request.Context())})
		return
	}

	kind, err := models.ParseActorKind(actorType)
	if err != nil || actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actorType and actorId must be given together"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": h.repo.ListInvitesFor(c.Request.Context(), kind, actorID)})
}

func (h *InviteHandler) AcceptInvite(c *gin.Context) {
	h.respond(c, models.InviteStatusAccepted)
}

func (h *InviteHandler) RejectInvite(c *gin.Context) {
	h.respond(c, models.InviteStatusRejected)
}

func (h *InviteHandler) CancelInvite(c *gin.Context) {
	h.respond(c, models.InviteStatusCancelled)
}

// respond applies a status change to a pending invite. Responding twice is a conflict.
func (h *InviteHandler) respond(c *gin.Context, status models.InviteStatus) {
	ctx := c.Request.Context()

	invite, err := h.repo.Respond(ctx, c.Param("id"), status)
	switch {
	case errors.Is(err, connections.ErrInviteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "invite not found"})
		return
	case errors.Is(err, connections.ErrInviteNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil && invite == nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update invite"})
		return
	case err != nil:
		// status persisted but the graph write failed
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update connections"})
		return
	}

	h.emitter.InviteResponded(ctx, *invite, requestIDFromContext(c), actorIDFromContext(c))
	c.JSON(http.StatusOK, invite)
}

// ClinicsForDoctor lists the clinics connected to a doctor.
func (h *InviteHandler) ClinicsForDoctor(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clinics": h.repo.GetClinicsForDoctor(c.Request.Context(), c.Param("id"))})
}

// DoctorsForClinic lists the doctors connected to a clinic.
func (h *InviteHandler) DoctorsForClinic(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"doctors": h.repo.GetDoctorsForClinic(c.Request.Context(), c.Param("id"))})
}
