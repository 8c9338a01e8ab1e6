// Package codec builds and parses the canonical fixed-layout binary permit
// message that an organizer's wallet signs off-chain.
//
// Layout (integers little-endian, fixed widths, no padding):
//
//	"RWA_RAFFLE_PERMIT" || organizer(32) || nonce(16) || expiry(i64) ||
//	required_tickets(u64) || deadline(i64) || program_id(32) ||
//	auto_draw(u8) || ticket_mode(u8)
//
// The layout is injective: two distinct logical permits never encode to the
// same bytes. Verifiers reconstruct the expected message from instruction
// arguments and compare signed bytes instead of parsing signed input.
package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"rwa-raffle-backend/internal/features/permit/models"
)

// DomainPrefix separates permit signatures from any other message an
// organizer wallet might sign.
const DomainPrefix = "RWA_RAFFLE_PERMIT"

// MessageSize is the exact encoded length: 17 + 32 + 16 + 8 + 8 + 8 + 32 + 1 + 1.
const MessageSize = len(DomainPrefix) + 32 + models.NonceSize + 8 + 8 + 8 + 32 + 2

// Build encodes a permit into its canonical message bytes. It rejects
// malformed keys and out-of-range flag values rather than coercing them.
func Build(p *models.Permit) ([]byte, error) {
	organizer, err := decodeKey("organizer", p.Organizer)
	if err != nil {
		return nil, err
	}
	program, err := decodeKey("program_id", p.ProgramID)
	if err != nil {
		return nil, err
	}
	if p.TicketMode > 2 {
		return nil, fmt.Errorf("ticket_mode out of range: %d", p.TicketMode)
	}

	buf := make([]byte, 0, MessageSize)
	buf = append(buf, DomainPrefix...)
	buf = append(buf, organizer...)
	buf = append(buf, p.Nonce[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Expiry))
	buf = binary.LittleEndian.AppendUint64(buf, p.RequiredTickets)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Deadline))
	buf = append(buf, program...)
	if p.AutoDraw {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, p.TicketMode)
	return buf, nil
}

// Parse decodes canonical message bytes back into a permit. Any length or
// range mismatch fails; there is no best-effort repair.
func Parse(msg []byte) (*models.Permit, error) {
	if len(msg) != MessageSize {
		return nil, fmt.Errorf("malformed permit message: %d bytes, want %d", len(msg), MessageSize)
	}
	if string(msg[:len(DomainPrefix)]) != DomainPrefix {
		return nil, fmt.Errorf("malformed permit message: wrong domain prefix")
	}

	p := &models.Permit{}
	off := len(DomainPrefix)

	p.Organizer = hex.EncodeToString(msg[off : off+32])
	off += 32
	copy(p.Nonce[:], msg[off:off+models.NonceSize])
	off += models.NonceSize
	p.Expiry = int64(binary.LittleEndian.Uint64(msg[off : off+8]))
	off += 8
	p.RequiredTickets = binary.LittleEndian.Uint64(msg[off : off+8])
	off += 8
	p.Deadline = int64(binary.LittleEndian.Uint64(msg[off : off+8]))
	off += 8
	p.ProgramID = hex.EncodeToString(msg[off : off+32])
	off += 32

	switch msg[off] {
	case 0:
		p.AutoDraw = false
	case 1:
		p.AutoDraw = true
	default:
		return nil, fmt.Errorf("auto_draw byte out of range: %d", msg[off])
	}
	off++

	if msg[off] > 2 {
		return nil, fmt.Errorf("ticket_mode out of range: %d", msg[off])
	}
	p.TicketMode = msg[off]

	return p, nil
}

func decodeKey(field, s string) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", field, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid %s: got %d bytes, want 32", field, len(raw))
	}
	return raw, nil
}
