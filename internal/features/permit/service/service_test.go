package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	organizermodels "rwa-raffle-backend/internal/features/organizer/models"
	organizerinmemory "rwa-raffle-backend/internal/features/organizer/repository/inmemory"
	organizerservice "rwa-raffle-backend/internal/features/organizer/service"
	"rwa-raffle-backend/internal/features/permit/codec"
	"rwa-raffle-backend/internal/features/permit/models"
)

const testProgramID = "aa11bb22cc33dd44ee55ff660011223344556677889900aabbccddeeff001122"

func newTestService(t *testing.T) (*Service, organizerservice.OrganizerService, string, time.Time) {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	organizer := hex.EncodeToString(pub)

	organizerSvc := organizerservice.NewOrganizerService(organizerinmemory.NewInMemoryOrganizerRepository(), zerolog.Nop())
	_, err = organizerSvc.Register(context.Background(), &organizermodels.RegisterRequest{
		PublicKey:    organizer,
		EnterpriseID: "acme",
		Tier:         organizermodels.TierEnterprise,
	})
	require.NoError(t, err)

	svc := NewService(organizerSvc, testProgramID, time.Hour, zerolog.Nop())
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }
	return svc, organizerSvc, organizer, now
}

func issueRequest(organizer string, deadline int64) *models.IssueRequest {
	req := &models.IssueRequest{Organizer: organizer, EnterpriseID: "acme"}
	req.RaffleConfig.RequiredTickets = 100
	req.RaffleConfig.Deadline = deadline
	req.RaffleConfig.AutoDraw = true
	req.RaffleConfig.TicketMode = 1
	return req
}

func TestIssue(t *testing.T) {
	ctx := context.Background()
	svc, _, organizer, now := newTestService(t)

	resp, err := svc.Issue(ctx, issueRequest(organizer, now.Unix()+86400))
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour).Unix(), resp.Expiry)
	assert.Len(t, resp.Nonce, models.NonceSize*2)

	// The returned message must parse back to the requested parameters.
	message, err := hex.DecodeString(resp.Message)
	require.NoError(t, err)
	permit, err := codec.Parse(message)
	require.NoError(t, err)
	assert.Equal(t, organizer, permit.Organizer)
	assert.Equal(t, uint64(100), permit.RequiredTickets)
	assert.Equal(t, testProgramID, permit.ProgramID)
	assert.True(t, permit.AutoDraw)
	assert.Equal(t, uint8(1), permit.TicketMode)
	assert.Equal(t, resp.Nonce, hex.EncodeToString(permit.Nonce[:]))
}

func TestIssue_FreshNoncePerPermit(t *testing.T) {
	ctx := context.Background()
	svc, _, organizer, now := newTestService(t)

	first, err := svc.Issue(ctx, issueRequest(organizer, now.Unix()+86400))
	require.NoError(t, err)
	second, err := svc.Issue(ctx, issueRequest(organizer, now.Unix()+86400))
	require.NoError(t, err)
	assert.NotEqual(t, first.Nonce, second.Nonce)
}

func TestIssue_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, organizerSvc, organizer, now := newTestService(t)

	t.Run("unknown organizer", func(t *testing.T) {
		_, err := svc.Issue(ctx, issueRequest("deadbeef", now.Unix()+86400))
		assert.ErrorIs(t, err, organizermodels.ErrNotFound)
	})

	t.Run("past deadline", func(t *testing.T) {
		_, err := svc.Issue(ctx, issueRequest(organizer, now.Unix()-1))
		assert.ErrorIs(t, err, ErrInvalidDeadline)
	})

	t.Run("deactivated organizer", func(t *testing.T) {
		require.NoError(t, organizerSvc.UpdateStatus(ctx, organizer, false))
		_, err := svc.Issue(ctx, issueRequest(organizer, now.Unix()+86400))
		assert.ErrorIs(t, err, organizermodels.ErrInactive)
	})
}
