package engine

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	organizermodels "rwa-raffle-backend/internal/features/organizer/models"
	"rwa-raffle-backend/internal/features/permit/codec"
	permitmodels "rwa-raffle-backend/internal/features/permit/models"
	"rwa-raffle-backend/internal/features/raffle/models"
)

// verifyPermit is the precondition gate for permit-backed creation. The
// expected message is reconstructed from the request arguments and compared
// against the signature; signed input is never parsed. Any mismatch rejects
// the operation outright.
func (e *Engine) verifyPermit(ctx context.Context, organizer string, cfg *models.Config, permit *permitmodels.Permit, signature []byte, now time.Time) error {
	if permit == nil {
		return fmt.Errorf("%w: missing permit", permitmodels.ErrInvalidPermit)
	}
	if permit.Organizer != organizer {
		return fmt.Errorf("%w: permit organizer does not match caller", permitmodels.ErrInvalidPermit)
	}
	if permit.ProgramID != e.programID {
		return permitmodels.ErrWrongProgram
	}

	// The signed parameters must be exactly the requested ones; a permit
	// for a different configuration authorizes nothing.
	if permit.RequiredTickets != cfg.RequiredTickets ||
		permit.Deadline != cfg.Deadline ||
		permit.AutoDraw != cfg.AutoDraw ||
		permit.TicketMode != uint8(cfg.TicketMode) {
		return fmt.Errorf("%w: permit does not cover the requested config", permitmodels.ErrInvalidPermit)
	}

	if now.Unix() >= permit.Expiry {
		return permitmodels.ErrPermitExpired
	}

	message, err := codec.Build(permit)
	if err != nil {
		return fmt.Errorf("%w: %v", permitmodels.ErrInvalidPermit, err)
	}
	publicKey, err := organizermodels.DecodePublicKey(organizer)
	if err != nil {
		return fmt.Errorf("%w: %v", permitmodels.ErrInvalidPermit, err)
	}
	if len(signature) != ed25519.SignatureSize || !ed25519.Verify(publicKey, message, signature) {
		return fmt.Errorf("%w: signature verification failed", permitmodels.ErrInvalidPermit)
	}

	if err := e.requireActiveOrganizer(ctx, organizer); err != nil {
		return err
	}
	return nil
}
