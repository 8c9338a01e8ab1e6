package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	organizermodels "rwa-raffle-backend/internal/features/organizer/models"
	organizerservice "rwa-raffle-backend/internal/features/organizer/service"
	"rwa-raffle-backend/internal/features/permit/codec"
	"rwa-raffle-backend/internal/features/permit/models"
)

var ErrInvalidDeadline = errors.New("raffle deadline must be in the future")

// Service prepares unsigned permit messages for eligible organizers. It
// never signs: the organizer's own wallet must produce the ed25519
// signature over the returned message.
type Service struct {
	organizers organizerservice.OrganizerService
	programID  string
	ttl        time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(organizers organizerservice.OrganizerService, programID string, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		organizers: organizers,
		programID:  programID,
		ttl:        ttl,
		logger:     logger.With().Str("component", "permit_service").Logger(),
		now:        time.Now,
	}
}

// Issue validates organizer eligibility, generates a fresh nonce and expiry,
// and returns the canonical message bytes to sign.
func (s *Service) Issue(ctx context.Context, req *models.IssueRequest) (*models.IssueResponse, error) {
	profile, err := s.organizers.GetByPublicKey(ctx, req.Organizer)
	if err != nil {
		return nil, err
	}
	if !profile.Active {
		return nil, organizermodels.ErrInactive
	}

	now := s.now()
	if req.RaffleConfig.Deadline <= now.Unix() {
		return nil, ErrInvalidDeadline
	}

	permit := &models.Permit{
		Organizer:       req.Organizer,
		Expiry:          now.Add(s.ttl).Unix(),
		RequiredTickets: req.RaffleConfig.RequiredTickets,
		Deadline:        req.RaffleConfig.Deadline,
		ProgramID:       s.programID,
		AutoDraw:        req.RaffleConfig.AutoDraw,
		TicketMode:      req.RaffleConfig.TicketMode,
	}
	if _, err := rand.Read(permit.Nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	message, err := codec.Build(permit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPermit, err)
	}

	s.logger.Info().
		Str("organizer", req.Organizer).
		Str("enterprise_id", profile.EnterpriseID).
		Int64("expiry", permit.Expiry).
		Msg("issued permit message")

	return &models.IssueResponse{
		Message: hex.EncodeToString(message),
		Nonce:   hex.EncodeToString(permit.Nonce[:]),
		Expiry:  permit.Expiry,
	}, nil
}
