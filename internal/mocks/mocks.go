package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Cross4solution/MedGama-sub003/internal/connections"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

type ConnectionsRepositoryMock struct {
	mock.Mock
}

func (m *ConnectionsRepositoryMock) CreateInvite(ctx context.Context, opts connections.CreateInviteOptions) (connections.CreateResult, error) {
	args := m.Called(ctx, opts)
	var result connections.CreateResult
	if val := args.Get(0); val != nil {
		result = val.(connections.CreateResult)
	}
	return result, args.Error(1)
}

func (m *ConnectionsRepositoryMock) GetInvite(ctx context.Context, id string) (models.Invite, error) {
	args := m.Called(ctx, id)
	var invite models.Invite
	if val := args.Get(0); val != nil {
		invite = val.(models.Invite)
	}
	return invite, args.Error(1)
}

func (m *ConnectionsRepositoryMock) ListInvitesFor(ctx context.Context, kind models.ActorKind, id string) []models.Invite {
	args := m.Called(ctx, kind, id)
	if val := args.Get(0); val != nil {
		return val.([]models.Invite)
	}
	return nil
}

func (m *ConnectionsRepositoryMock) LoadInvites(ctx context.Context) []models.Invite {
	args := m.Called(ctx)
	if val := args.Get(0); val != nil {
		return val.([]models.Invite)
	}
	return nil
}

func (m *ConnectionsRepositoryMock) AcceptInvite(ctx context.Context, id string) (*models.Invite, error) {
	return m.transition(m.Called(ctx, id))
}

func (m *ConnectionsRepositoryMock) RejectInvite(ctx context.Context, id string) (*models.Invite, error) {
	return m.transition(m.Called(ctx, id))
}

func (m *ConnectionsRepositoryMock) CancelInvite(ctx context.Context, id string) (*models.Invite, error) {
	return m.transition(m.Called(ctx, id))
}

func (m *ConnectionsRepositoryMock) Respond(ctx context.Context, id string, status models.InviteStatus) (*models.Invite, error) {
	return m.transition(m.Called(ctx, id, status))
}

func (m *ConnectionsRepositoryMock) transition(args mock.Arguments) (*models.Invite, error) {
	var invite *models.Invite
	if val := args.Get(0); val != nil {
		invite = val.(*models.Invite)
	}
	return invite, args.Error(1)
}

func (m *ConnectionsRepositoryMock) GetClinicsForDoctor(ctx context.Context, doctorID string) []models.ConnectedClinic {
	args := m.Called(ctx, doctorID)
	if val := args.Get(0); val != nil {
		return val.([]models.ConnectedClinic)
	}
	return []models.ConnectedClinic{}
}

func (m *ConnectionsRepositoryMock) GetDoctorsForClinic(ctx context.Context, clinicID string) []models.ConnectedDoctor {
	args := m.Called(ctx, clinicID)
	if val := args.Get(0); val != nil {
		return val.([]models.ConnectedDoctor)
	}
	return []models.ConnectedDoctor{}
}

var _ connections.Repository = (*ConnectionsRepositoryMock)(nil)

// PublisherMock stands in for the AMQP publisher behind audit and ws events.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
