package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Cross4solution/MedGama-sub003/internal/connections"
	"github.com/Cross4solution/MedGama-sub003/internal/kv"
	"github.com/Cross4solution/MedGama-sub003/internal/middleware"
	"github.com/Cross4solution/MedGama-sub003/internal/mocks"
	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/telemetry"
)

func setupInviteRouter(handler *InviteHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ActorIDKey, "d-1")
		c.Next()
	})
	handler.Register(r)
	return r
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const doctorToClinicBody = `{"fromType":"doctor","fromId":"d-1","fromName":"Dr. Ada","toType":"clinic","toId":"c-1","toName":"Harbor Clinic"}`

func TestCreateInviteCreated(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	router := setupInviteRouter(NewInviteHandler(repo, nil))

	invite := &models.Invite{ID: "inv-1", FromType: models.ActorDoctor, FromID: "d-1", ToType: models.ActorClinic, ToID: "c-1", Status: models.InviteStatusPending}
	repo.On("CreateInvite", mock.Anything, mock.MatchedBy(func(opts connections.CreateInviteOptions) bool {
		return opts.FromType == models.ActorDoctor && opts.ToID == "c-1"
	})).Return(connections.CreateResult{OK: true, Invite: invite}, nil).Once()

	rec := doJSON(t, router, http.MethodPost, "/invites", doctorToClinicBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp connections.CreateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "inv-1", resp.Invite.ID)
	repo.AssertExpectations(t)
}

func TestCreateInviteAlreadyPending(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	router := setupInviteRouter(NewInviteHandler(repo, nil))

	repo.On("CreateInvite", mock.Anything, mock.Anything).
		Return(connections.CreateResult{OK: false, Reason: connections.ReasonAlreadyPending}, nil).Once()

	rec := doJSON(t, router, http.MethodPost, "/invites", doctorToClinicBody)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"ok":false,"reason":"already_pending"}`, rec.Body.String())
}

func TestCreateInviteValidation(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	router := setupInviteRouter(NewInviteHandler(repo, nil))

	cases := map[string]string{
		"malformed":      `{`,
		"unknown kind":   `{"fromType":"patient","fromId":"p","toType":"clinic","toId":"c-1"}`,
		"same kind":      `{"fromType":"doctor","fromId":"d-1","toType":"doctor","toId":"d-2"}`,
		"missing target": `{"fromType":"doctor","fromId":"d-1","toType":"clinic","toId":"  "}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/invites", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	repo.AssertNotCalled(t, "CreateInvite", mock.Anything, mock.Anything)
}

func TestCreateInviteStoreError(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	router := setupInviteRouter(NewInviteHandler(repo, nil))

	repo.On("CreateInvite", mock.Anything, mock.Anything).Return(connections.CreateResult{}, assert.AnError).Once()

	rec := doJSON(t, router, http.MethodPost, "/invites", doctorToClinicBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListInvitesFiltered(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	router := setupInviteRouter(NewInviteHandler(repo, nil))

	repo.On("ListInvitesFor", mock.Anything, models.ActorClinic, "c-1").
		Return([]models.Invite{{ID: "inv-1"}}, nil).Once()

	rec := doJSON(t, router, http.MethodGet, "/invites?actorType=clinic&actorId=c-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inv-1"`)

	rec = doJSON(t, router, http.MethodGet, "/invites?actorType=clinic", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	repo.AssertExpectations(t)
}

func TestRespondNotFound(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	router := setupInviteRouter(NewInviteHandler(repo, nil))

	repo.On("Respond", mock.Anything, "missing", models.InviteStatusAccepted).Return(nil, connections.ErrInviteNotFound).Once()

	rec := doJSON(t, router, http.MethodPost, "/invites/missing/accept", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	repo.AssertExpectations(t)
}

func TestRespondNotPending(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	router := setupInviteRouter(NewInviteHandler(repo, nil))

	repo.On("Respond", mock.Anything, "inv-1", models.InviteStatusCancelled).
		Return(nil, fmt.Errorf("%w: rejected", connections.ErrInviteNotPending)).Once()

	rec := doJSON(t, router, http.MethodPost, "/invites/inv-1/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "rejected")
	repo.AssertExpectations(t)
}

func TestRespondGraphWriteFailure(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	router := setupInviteRouter(NewInviteHandler(repo, nil))

	accepted := &models.Invite{ID: "inv-1", Status: models.InviteStatusAccepted}
	repo.On("Respond", mock.Anything, "inv-1", models.InviteStatusAccepted).Return(accepted, assert.AnError).Once()

	rec := doJSON(t, router, http.MethodPost, "/invites/inv-1/accept", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connections")
}

func TestRejectInviteEmitsAudit(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.log", "medgama-connections", "test")
	router := setupInviteRouter(NewInviteHandler(repo, emitter))

	rejected := &models.Invite{ID: "inv-1", FromType: models.ActorClinic, FromID: "c-1", ToType: models.ActorDoctor, ToID: "d-1", Status: models.InviteStatusRejected}
	repo.On("Respond", mock.Anything, "inv-1", models.InviteStatusRejected).Return(rejected, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.log", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.InviteID == "inv-1" && env.Payload.Status == "rejected" && env.ActorID != nil && *env.ActorID == "d-1"
	})).Return(nil).Once()

	rec := doJSON(t, router, http.MethodPost, "/invites/inv-1/reject", "")

	require.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestConnectionListsNeverNull(t *testing.T) {
	repo := new(mocks.ConnectionsRepositoryMock)
	router := setupInviteRouter(NewInviteHandler(repo, nil))

	repo.On("GetClinicsForDoctor", mock.Anything, "d-404").Return([]models.ConnectedClinic{}).Once()
	repo.On("GetDoctorsForClinic", mock.Anything, "c-404").Return([]models.ConnectedDoctor{}).Once()

	rec := doJSON(t, router, http.MethodGet, "/doctors/d-404/clinics", "")
	assert.JSONEq(t, `{"clinics":[]}`, rec.Body.String())
	rec = doJSON(t, router, http.MethodGet, "/clinics/c-404/doctors", "")
	assert.JSONEq(t, `{"doctors":[]}`, rec.Body.String())
}

func TestInviteFlowAgainstStore(t *testing.T) {
	store := connections.NewStore(kv.NewMemory(), nil)
	router := setupInviteRouter(NewInviteHandler(store, nil))

	rec := doJSON(t, router, http.MethodPost, "/invites", doctorToClinicBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created connections.CreateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPost, "/invites", doctorToClinicBody)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/invites/"+created.Invite.ID+"/accept", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/invites/"+created.Invite.ID+"/accept", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/clinics/c-1/doctors", "")
	assert.JSONEq(t, `{"doctors":[{"id":"d-1","name":"Dr. Ada","href":"/doctor/d-1"}]}`, rec.Body.String())
	rec = doJSON(t, router, http.MethodGet, "/doctors/d-1/clinics", "")
	assert.JSONEq(t, `{"clinics":[{"id":"c-1","name":"Harbor Clinic","href":"/clinic/c-1"}]}`, rec.Body.String())
}

func TestConcurrentResponsesHaveOneWinner(t *testing.T) {
	store := connections.NewStore(kv.NewMemory(), nil)
	router := setupInviteRouter(NewInviteHandler(store, nil))

	for i := 0; i < 20; i++ {
		body := fmt.Sprintf(`{"fromType":"doctor","fromId":"d-%d","fromName":"Dr. %d","toType":"clinic","toId":"c-1","toName":"Harbor Clinic"}`, i, i)
		rec := doJSON(t, router, http.MethodPost, "/invites", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		var created connections.CreateResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		codes := make([]int, 2)
		var wg sync.WaitGroup
		for j, action := range []string{"accept", "reject"} {
			wg.Add(1)
			go func(j int, action string) {
				defer wg.Done()
				codes[j] = doJSON(t, router, http.MethodPost, "/invites/"+created.Invite.ID+"/"+action, "").Code
			}(j, action)
		}
		wg.Wait()

		assert.ElementsMatch(t, []int{http.StatusOK, http.StatusConflict}, codes)
		invite, err := store.GetInvite(context.Background(), created.Invite.ID)
		require.NoError(t, err)
		linked := len(store.GetClinicsForDoctor(context.Background(), fmt.Sprintf("d-%d", i))) == 1
		assert.Equal(t, invite.Status == models.InviteStatusAccepted, linked, "graph agrees with final status")
	}
}
