package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"rwa-raffle-backend/internal/features/organizer/models"
	"rwa-raffle-backend/internal/features/organizer/repository"
)

const (
	keyPrefixOrganizer = "organizer:"
	keyOrganizersAll   = "organizers:all"
)

type redisRepository struct {
	client *redis.Client
}

func NewRedisOrganizerRepository(client *redis.Client) repository.Repository {
	return &redisRepository{client: client}
}

func makeOrganizerKey(publicKey string) string {
	return keyPrefixOrganizer + publicKey
}

func (r *redisRepository) Create(ctx context.Context, profile *models.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal organizer: %w", err)
	}

	ok, err := r.client.SetNX(ctx, makeOrganizerKey(profile.PublicKey), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store organizer: %w", err)
	}
	if !ok {
		return models.ErrAlreadyRegistered
	}

	if err := r.client.SAdd(ctx, keyOrganizersAll, profile.PublicKey).Err(); err != nil {
		return fmt.Errorf("failed to index organizer: %w", err)
	}
	return nil
}

func (r *redisRepository) GetByPublicKey(ctx context.Context, publicKey string) (*models.Profile, error) {
	data, err := r.client.Get(ctx, makeOrganizerKey(publicKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organizer: %w", err)
	}

	profile := &models.Profile{}
	if err := json.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal organizer: %w", err)
	}
	return profile, nil
}

func (r *redisRepository) List(ctx context.Context) ([]*models.Profile, error) {
	keys, err := r.client.SMembers(ctx, keyOrganizersAll).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list organizers: %w", err)
	}

	profiles := make([]*models.Profile, 0, len(keys))
	for _, publicKey := range keys {
		profile, err := r.GetByPublicKey(ctx, publicKey)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func (r *redisRepository) SetActive(ctx context.Context, publicKey string, active bool) error {
	profile, err := r.GetByPublicKey(ctx, publicKey)
	if err != nil {
		return err
	}
	profile.Active = active

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal organizer: %w", err)
	}
	return r.client.Set(ctx, makeOrganizerKey(publicKey), data, 0).Err()
}
