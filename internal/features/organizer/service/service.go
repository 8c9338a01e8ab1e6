package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"rwa-raffle-backend/internal/features/organizer/models"
	"rwa-raffle-backend/internal/features/organizer/repository"
)

type OrganizerService interface {
	Register(ctx context.Context, input *models.RegisterRequest) (*models.Profile, error)
	GetByPublicKey(ctx context.Context, publicKey string) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	UpdateStatus(ctx context.Context, publicKey string, active bool) error

	// IsActive is the eligibility oracle consulted by the raffle core.
	IsActive(ctx context.Context, publicKey string) (bool, error)
}

type organizerService struct {
	repo   repository.Repository
	logger zerolog.Logger
}

func NewOrganizerService(repo repository.Repository, logger zerolog.Logger) OrganizerService {
	return &organizerService{
		repo:   repo,
		logger: logger.With().Str("component", "organizer_service").Logger(),
	}
}

func (s *organizerService) Register(ctx context.Context, input *models.RegisterRequest) (*models.Profile, error) {
	if _, err := models.DecodePublicKey(input.PublicKey); err != nil {
		return nil, err
	}
	if !input.Tier.Valid() {
		return nil, models.ErrInvalidTier
	}

	profile := &models.Profile{
		PublicKey:          input.PublicKey,
		EnterpriseID:       input.EnterpriseID,
		Tier:               input.Tier,
		AllowedCollections: input.AllowedCollections,
		Active:             true,
		RegisteredAt:       time.Now().Unix(),
	}
	if profile.AllowedCollections == nil {
		profile.AllowedCollections = []string{}
	}

	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("organizer", profile.PublicKey).
		Str("enterprise_id", profile.EnterpriseID).
		Str("tier", string(profile.Tier)).
		Msg("registered organizer")

	return profile, nil
}

func (s *organizerService) GetByPublicKey(ctx context.Context, publicKey string) (*models.Profile, error) {
	return s.repo.GetByPublicKey(ctx, publicKey)
}

func (s *organizerService) List(ctx context.Context) ([]*models.Profile, error) {
	return s.repo.List(ctx)
}

func (s *organizerService) UpdateStatus(ctx context.Context, publicKey string, active bool) error {
	if err := s.repo.SetActive(ctx, publicKey, active); err != nil {
		return err
	}
	s.logger.Info().Str("organizer", publicKey).Bool("active", active).Msg("updated organizer status")
	return nil
}

func (s *organizerService) IsActive(ctx context.Context, publicKey string) (bool, error) {
	profile, err := s.repo.GetByPublicKey(ctx, publicKey)
	if err != nil {
		return false, err
	}
	return profile.Active, nil
}
