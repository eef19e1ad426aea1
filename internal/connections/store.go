// Package connections tracks doctor/clinic invites and the graph of accepted
// relationships. Both are whole JSON documents in a kv.Store; concurrent
// writers in other processes follow last-write-wins.
package connections

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cross4solution/MedGama-sub003/internal/events"
	"github.com/Cross4solution/MedGama-sub003/internal/kv"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/observability"
)

const (
	InvitesKey = "medgama.invites"
	GraphKey   = "medgama.connections"

	ReasonAlreadyPending = "already_pending"
)

var (
	ErrInviteNotFound   = errors.New("invite not found")
	ErrInviteNotPending = errors.New("invite is no longer pending")
)

// Repository is the invite/connection API consumed by the HTTP handlers.
type Repository interface {
	CreateInvite(ctx context.Context, opts CreateInviteOptions) (CreateResult, error)
	GetInvite(ctx context.Context, id string) (models.Invite, error)
	ListInvitesFor(ctx context.Context, kind models.ActorKind, id string) []models.Invite
	LoadInvites(ctx context.Context) []models.Invite
	AcceptInvite(ctx context.Context, id string) (*models.Invite, error)
	RejectInvite(ctx context.Context, id string) (*models.Invite, error)
	CancelInvite(ctx context.Context, id string) (*models.Invite, error)
	Respond(ctx context.Context, id string, status models.InviteStatus) (*models.Invite, error)
	GetClinicsForDoctor(ctx context.Context, doctorID string) []models.ConnectedClinic
	GetDoctorsForClinic(ctx context.Context, clinicID string) []models.ConnectedDoctor
}

// CreateInviteOptions describes both parties of a new invite.
type CreateInviteOptions struct {
	FromType   models.ActorKind   `json:"fromType"`
	FromID     string             `json:"fromId"`
	FromName   string             `json:"fromName"`
	FromTitle  string             `json:"fromTitle"`
	FromAvatar string             `json:"fromAvatar"`
	ToType     models.ActorKind   `json:"toType"`
	ToID       string             `json:"toId"`
	ToName     string             `json:"toName"`
	ToTitle    string             `json:"toTitle"`
	ToAvatar   string             `json:"toAvatar"`
	Message    string             `json:"message"`
	ClinicMeta *models.ClinicMeta `json:"clinicMeta,omitempty"`
	DoctorMeta *models.DoctorMeta `json:"doctorMeta,omitempty"`
}

// CreateResult reports the outcome of CreateInvite. A duplicate pending
// invite is not an error; it comes back as OK=false with a Reason.
type CreateResult struct {
	OK     bool           `json:"ok"`
	Reason string         `json:"reason,omitempty"`
	Invite *models.Invite `json:"invite,omitempty"`
}

// Store implements Repository on top of a kv.Store and an events.Bus.
// Change notifications are queued under mu and dispatched after it is released.
type Store struct {
	mu      sync.Mutex
	pending []string
	kv      kv.Store
	bus   events.Bus
	now   func() time.Time
	newID func() string
}

// NewStore builds a Store. A nil bus disables change notifications.
func NewStore(store kv.Store, bus events.Bus) *Store {
	return &Store{
		kv:    store,
		bus:   bus,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// LoadInvites returns every invite, most recent first. It never fails.
func (s *Store) LoadInvites(ctx context.Context) []models.Invite {
	return kv.LoadJSON(ctx, s.kv, InvitesKey, []models.Invite{})
}

// LoadGraph returns the connection graph with both maps allocated.
func (s *Store) LoadGraph(ctx context.Context) models.Graph {
	graph := kv.LoadJSON(ctx, s.kv, GraphKey, models.NewGraph())
	if graph.DoctorToClinics == nil {
		graph.DoctorToClinics = map[string][]models.ConnectedClinic{}
	}
	if graph.ClinicToDoctors == nil {
		graph.ClinicToDoctors = map[string][]models.ConnectedDoctor{}
	}
	return graph
}

// CreateInvite stores a new pending invite unless one is already pending
// for the same direction.
func (s *Store) CreateInvite(ctx context.Context, opts CreateInviteOptions) (CreateResult, error) {
	s.mu.Lock()
	defer s.unlock()

	invite := models.Invite{
		ID:         s.newID(),
		FromType:   opts.FromType,
		FromID:     opts.FromID,
		FromName:   opts.FromName,
		FromTitle:  opts.FromTitle,
		FromAvatar: opts.FromAvatar,
		ToType:     opts.ToType,
		ToID:       opts.ToID,
		ToName:     opts.ToName,
		ToTitle:    opts.ToTitle,
		ToAvatar:   opts.ToAvatar,
		Message:    opts.Message,
		Status:     models.InviteStatusPending,
		CreatedAt:  s.now().UTC(),
		ClinicMeta: opts.ClinicMeta,
		DoctorMeta: opts.DoctorMeta,
	}

	invites := s.LoadInvites(ctx)
	for _, existing := range invites {
		if existing.Status == models.InviteStatusPending && existing.SameDirection(invite) {
			observability.IncInviteResult(ReasonAlreadyPending)
			return CreateResult{OK: false, Reason: ReasonAlreadyPending}, nil
		}
	}

	invites = append([]models.Invite{invite}, invites...)
	if err := kv.SaveJSON(ctx, s.kv, InvitesKey, invites); err != nil {
		observability.IncInviteResult("error")
		return CreateResult{}, fmt.Errorf("persist invites: %w", err)
	}
	observability.IncInviteResult("created")
	s.queue(events.InvitesChanged)
	return CreateResult{OK: true, Invite: &invite}, nil
}

// GetInvite looks up one invite by id.
func (s *Store) GetInvite(ctx context.Context, id string) (models.Invite, error) {
	for _, invite := range s.LoadInvites(ctx) {
		if invite.ID == id {
			return invite, nil
		}
	}
	return models.Invite{}, ErrInviteNotFound
}

// ListInvitesFor returns the invites sent or received by one actor.
func (s *Store) ListInvitesFor(ctx context.Context, kind models.ActorKind, id string) []models.Invite {
	result := []models.Invite{}
	for _, invite := range s.LoadInvites(ctx) {
		if invite.Involves(kind, id) {
			result = append(result, invite)
		}
	}
	return result
}

// UpdateInviteStatus sets the status and response time of an invite.
func (s *Store) UpdateInviteStatus(ctx context.Context, id string, status models.InviteStatus) (*models.Invite, error) {
	s.mu.Lock()
	defer s.unlock()
	return s.updateStatusLocked(ctx, id, status)
}

func (s *Store) updateStatusLocked(ctx context.Context, id string, status models.InviteStatus) (*models.Invite, error) {
	return s.transitionLocked(ctx, id, status, false)
}

func (s *Store) transitionLocked(ctx context.Context, id string, status models.InviteStatus, pendingOnly bool) (*models.Invite, error) {
	invites := s.LoadInvites(ctx)
	idx := -1
	for i := range invites {
		if invites[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrInviteNotFound
	}
	if pendingOnly && invites[idx].Status != models.InviteStatusPending {
		return nil, fmt.Errorf("%w: %s", ErrInviteNotPending, invites[idx].Status)
	}

	respondedAt := s.now().UTC()
	invites[idx].Status = status
	invites[idx].RespondedAt = &respondedAt
	if err := kv.SaveJSON(ctx, s.kv, InvitesKey, invites); err != nil {
		return nil, fmt.Errorf("persist invites: %w", err)
	}
	s.queue(events.InvitesChanged)

	updated := invites[idx]
	return &updated, nil
}

// AcceptInvite marks the invite accepted and links both parties in the graph.
func (s *Store) AcceptInvite(ctx context.Context, id string) (*models.Invite, error) {
	s.mu.Lock()
	defer s.unlock()

	invite, err := s.updateStatusLocked(ctx, id, models.InviteStatusAccepted)
	if err != nil {
		return nil, err
	}
	return s.linkLocked(ctx, invite)
}

func (s *Store) linkLocked(ctx context.Context, invite *models.Invite) (*models.Invite, error) {
	doctor, clinic := splitParties(*invite)
	graph := s.LoadGraph(ctx)
	upsertClinic(graph, doctor.ID, clinicEntry(clinic, invite.ClinicMeta))
	upsertDoctor(graph, clinic.ID, doctorEntry(doctor, invite.DoctorMeta))

	if err := kv.SaveJSON(ctx, s.kv, GraphKey, graph); err != nil {
		return invite, fmt.Errorf("persist connections: %w", err)
	}
	observability.IncConnectionUpsert()
	log.Printf("connection upserted doctor_id=%s clinic_id=%s invite_id=%s", doctor.ID, clinic.ID, invite.ID)
	s.queue(events.ConnectionsChanged)
	return invite, nil
}

// RejectInvite marks the invite rejected. The graph is untouched.
func (s *Store) RejectInvite(ctx context.Context, id string) (*models.Invite, error) {
	return s.UpdateInviteStatus(ctx, id, models.InviteStatusRejected)
}

// CancelInvite marks the invite cancelled. The graph is untouched.
func (s *Store) CancelInvite(ctx context.Context, id string) (*models.Invite, error) {
	return s.UpdateInviteStatus(ctx, id, models.InviteStatusCancelled)
}

// Respond moves a pending invite to status, linking the graph on acceptance.
// The pending check and the write happen under one lock, so of two racing
// responses exactly one wins and the other gets ErrInviteNotPending.
func (s *Store) Respond(ctx context.Context, id string, status models.InviteStatus) (*models.Invite, error) {
	switch status {
	case models.InviteStatusAccepted, models.InviteStatusRejected, models.InviteStatusCancelled:
	default:
		return nil, fmt.Errorf("cannot respond with status %q", status)
	}

	s.mu.Lock()
	defer s.unlock()

	invite, err := s.transitionLocked(ctx, id, status, true)
	if err != nil {
		return nil, err
	}
	if status != models.InviteStatusAccepted {
		return invite, nil
	}
	return s.linkLocked(ctx, invite)
}

// GetClinicsForDoctor returns the clinics connected to a doctor, never nil.
func (s *Store) GetClinicsForDoctor(ctx context.Context, doctorID string) []models.ConnectedClinic {
	clinics := s.LoadGraph(ctx).DoctorToClinics[doctorID]
	if clinics == nil {
		return []models.ConnectedClinic{}
	}
	return clinics
}

// GetDoctorsForClinic returns the doctors connected to a clinic, never nil.
func (s *Store) GetDoctorsForClinic(ctx context.Context, clinicID string) []models.ConnectedDoctor {
	doctors := s.LoadGraph(ctx).ClinicToDoctors[clinicID]
	if doctors == nil {
		return []models.ConnectedDoctor{}
	}
	return doctors
}

func (s *Store) queue(event string) {
	s.pending = append(s.pending, event)
}

// unlock releases mu and then delivers the queued notifications, so slow
// observers never hold up writers.
func (s *Store) unlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, event := range pending {
		observability.IncChangeNotification(event)
		if s.bus != nil {
			s.bus.Dispatch(event)
		}
	}
}

var _ Repository = (*Store)(nil)
