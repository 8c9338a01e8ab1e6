package engine

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwa-raffle-backend/internal/features/permit/codec"
	permitmodels "rwa-raffle-backend/internal/features/permit/models"
	"rwa-raffle-backend/internal/features/raffle/models"
	"rwa-raffle-backend/internal/features/raffle/slots"
)

const testProgramID = "aa11bb22cc33dd44ee55ff660011223344556677889900aabbccddeeff001122"

type fakeOracle struct {
	active map[string]bool
}

func (o *fakeOracle) IsActive(_ context.Context, publicKey string) (bool, error) {
	return o.active[publicKey], nil
}

type fakeNonceStore struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func newFakeNonceStore() *fakeNonceStore {
	return &fakeNonceStore{used: make(map[string]struct{})}
}

func (s *fakeNonceStore) Consume(_ context.Context, organizer string, nonce permitmodels.Nonce) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := organizer + ":" + hex.EncodeToString(nonce[:])
	if _, ok := s.used[key]; ok {
		return false, nil
	}
	s.used[key] = struct{}{}
	return true, nil
}

type fakeCredentialStore struct {
	credentials map[string]*models.Credential
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{credentials: make(map[string]*models.Credential)}
}

func (s *fakeCredentialStore) Get(_ context.Context, id string) (*models.Credential, error) {
	c, ok := s.credentials[id]
	if !ok {
		return nil, models.ErrCredentialNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *fakeCredentialStore) Burn(_ context.Context, id string) error {
	if _, ok := s.credentials[id]; !ok {
		return models.ErrCredentialNotFound
	}
	delete(s.credentials, id)
	return nil
}

func (s *fakeCredentialStore) Issue(_ context.Context, c *models.Credential) error {
	clone := *c
	s.credentials[c.ID] = &clone
	return nil
}

type fixture struct {
	engine      *Engine
	oracle      *fakeOracle
	nonces      *fakeNonceStore
	credentials *fakeCredentialStore
	now         time.Time

	organizerPub  string
	organizerPriv ed25519.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	f := &fixture{
		oracle:        &fakeOracle{active: map[string]bool{}},
		nonces:        newFakeNonceStore(),
		credentials:   newFakeCredentialStore(),
		now:           time.Unix(1_700_000_000, 0),
		organizerPub:  hex.EncodeToString(pub),
		organizerPriv: priv,
	}
	f.oracle.active[f.organizerPub] = true
	f.engine = New(testProgramID, f.oracle, f.nonces, f.credentials)
	f.engine.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) config(required uint64) models.Config {
	return models.Config{
		EscrowAsset:     "usdc",
		EscrowAccount:   "escrow-" + strings.Repeat("0", 8),
		RequiredTickets: required,
		TicketPrice:     1_000_000, // 1 USDC
		Deadline:        f.now.Unix() + 86400,
		AutoDraw:        true,
		TicketMode:      models.TicketModeDisabled,
		RefundMode:      models.RefundModeCash,
	}
}

func (f *fixture) signedPermit(t *testing.T, cfg models.Config, expiry int64) (*permitmodels.Permit, []byte) {
	t.Helper()

	permit := &permitmodels.Permit{
		Organizer:       f.organizerPub,
		Expiry:          expiry,
		RequiredTickets: cfg.RequiredTickets,
		Deadline:        cfg.Deadline,
		ProgramID:       testProgramID,
		AutoDraw:        cfg.AutoDraw,
		TicketMode:      uint8(cfg.TicketMode),
	}
	_, err := rand.Read(permit.Nonce[:])
	require.NoError(t, err)

	message, err := codec.Build(permit)
	require.NoError(t, err)
	return permit, ed25519.Sign(f.organizerPriv, message)
}

func (f *fixture) createFull(t *testing.T, required uint64, autoDraw bool) *State {
	t.Helper()
	cfg := f.config(required)
	cfg.AutoDraw = autoDraw
	st, _, err := f.engine.Create(context.Background(), f.organizerPub, cfg)
	require.NoError(t, err)
	return st
}

func depositReq(owner string, amount uint64, slotIdxs ...uint32) *DepositRequest {
	return &DepositRequest{Owner: owner, Slots: slotIdxs, Amount: amount}
}

func TestCreateWithPermit(t *testing.T) {
	ctx := context.Background()

	t.Run("valid permit creates selling raffle", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.config(3)
		permit, sig := f.signedPermit(t, cfg, f.now.Unix()+3600)

		st, events, err := f.engine.CreateWithPermit(ctx, f.organizerPub, cfg, permit, sig)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSelling, st.Raffle.Status)
		assert.Equal(t, uint64(0), st.Raffle.TicketsSold)
		assert.Equal(t, uint32(3), st.Slots.Size())
		require.Len(t, events, 1)
		assert.Equal(t, "raffle_created", events[0].EventKind())
	})

	// Scenario D: expired permit creates nothing.
	t.Run("expired permit rejected", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.config(3)
		permit, sig := f.signedPermit(t, cfg, f.now.Unix()-1)

		st, _, err := f.engine.CreateWithPermit(ctx, f.organizerPub, cfg, permit, sig)
		assert.ErrorIs(t, err, permitmodels.ErrPermitExpired)
		assert.Nil(t, st)
	})

	t.Run("replayed nonce rejected", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.config(3)
		permit, sig := f.signedPermit(t, cfg, f.now.Unix()+3600)

		_, _, err := f.engine.CreateWithPermit(ctx, f.organizerPub, cfg, permit, sig)
		require.NoError(t, err)

		// Same permit, same valid signature, still inside the expiry
		// window: the consumed nonce alone must reject it.
		_, _, err = f.engine.CreateWithPermit(ctx, f.organizerPub, cfg, permit, sig)
		assert.ErrorIs(t, err, permitmodels.ErrPermitReplayed)
	})

	t.Run("tampered signature rejected", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.config(3)
		permit, sig := f.signedPermit(t, cfg, f.now.Unix()+3600)
		sig[0] ^= 0xff

		_, _, err := f.engine.CreateWithPermit(ctx, f.organizerPub, cfg, permit, sig)
		assert.ErrorIs(t, err, permitmodels.ErrInvalidPermit)
	})

	t.Run("permit for different config rejected", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.config(3)
		permit, sig := f.signedPermit(t, cfg, f.now.Unix()+3600)

		cfg.RequiredTickets = 30
		_, _, err := f.engine.CreateWithPermit(ctx, f.organizerPub, cfg, permit, sig)
		assert.ErrorIs(t, err, permitmodels.ErrInvalidPermit)
	})

	t.Run("wrong program id rejected", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.config(3)
		permit, _ := f.signedPermit(t, cfg, f.now.Unix()+3600)
		permit.ProgramID = strings.Repeat("00", 32)
		message, err := codec.Build(permit)
		require.NoError(t, err)
		sig := ed25519.Sign(f.organizerPriv, message)

		_, _, err = f.engine.CreateWithPermit(ctx, f.organizerPub, cfg, permit, sig)
		assert.ErrorIs(t, err, permitmodels.ErrWrongProgram)
	})

	t.Run("inactive organizer rejected", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.config(3)
		permit, sig := f.signedPermit(t, cfg, f.now.Unix()+3600)
		f.oracle.active[f.organizerPub] = false

		_, _, err := f.engine.CreateWithPermit(ctx, f.organizerPub, cfg, permit, sig)
		assert.ErrorIs(t, err, models.ErrOrganizerInactive)
	})
}

func TestCreate_ConfigValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name   string
		mutate func(*models.Config)
	}{
		{"zero required tickets", func(c *models.Config) { c.RequiredTickets = 0 }},
		{"required tickets beyond slot range", func(c *models.Config) { c.RequiredTickets = 1<<32 + 2 }},
		{"zero ticket price", func(c *models.Config) { c.TicketPrice = 0 }},
		{"deadline in the past", func(c *models.Config) { c.Deadline = f.now.Unix() - 1 }},
		{"ticket mode out of range", func(c *models.Config) { c.TicketMode = 7 }},
		{"missing escrow account", func(c *models.Config) { c.EscrowAccount = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := f.config(3)
			tc.mutate(&cfg)
			_, _, err := f.engine.Create(ctx, f.organizerPub, cfg)
			assert.ErrorIs(t, err, models.ErrInvalidConfig)
		})
	}
}

// Scenario A: three exact deposits fill the raffle and auto-draw kicks in.
func TestDeposit_FillTriggersAutoDraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 3, true)
	price := st.Raffle.TicketPrice

	for i, owner := range []string{"alice", "bob", "carol"} {
		events, transfers, err := f.engine.Deposit(ctx, st, depositReq(owner, price, uint32(i)))
		require.NoError(t, err)
		require.Len(t, transfers, 1)
		assert.Equal(t, st.Raffle.EscrowAccount, transfers[0].To)

		if i == 2 {
			kinds := make([]string, 0, len(events))
			for _, ev := range events {
				kinds = append(kinds, ev.EventKind())
			}
			assert.Equal(t, []string{"deposited", "threshold_reached", "randomness_requested"}, kinds)
		}
	}

	assert.Equal(t, uint64(3), st.Raffle.TicketsSold)
	assert.Equal(t, models.StatusDrawing, st.Raffle.Status)
	assert.Equal(t, 3*price, st.Raffle.EscrowBalance)
}

// Scenario B: a deposit into a taken slot fails and changes nothing.
func TestDeposit_SlotConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 3, true)
	price := st.Raffle.TicketPrice

	_, _, err := f.engine.Deposit(ctx, st, depositReq("alice", price, 1))
	require.NoError(t, err)

	_, _, err = f.engine.Deposit(ctx, st, depositReq("bob", price, 1))
	assert.ErrorIs(t, err, slots.ErrPartialBatchConflict)
	assert.Equal(t, uint64(1), st.Raffle.TicketsSold)
	assert.Equal(t, "alice", st.Tickets[1].Owner)
}

func TestDeposit_BatchConflictIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 5, true)
	price := st.Raffle.TicketPrice

	_, _, err := f.engine.Deposit(ctx, st, depositReq("alice", price, 2))
	require.NoError(t, err)

	_, _, err = f.engine.Deposit(ctx, st, depositReq("bob", 3*price, 1, 2, 3))
	assert.ErrorIs(t, err, slots.ErrPartialBatchConflict)

	assert.Equal(t, uint64(1), st.Raffle.TicketsSold)
	free, _ := st.Slots.IsFree(1)
	assert.True(t, free)
	free, _ = st.Slots.IsFree(3)
	assert.True(t, free)
}

func TestDeposit_AmountMustBeExact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 3, true)
	price := st.Raffle.TicketPrice

	for _, amount := range []uint64{0, price - 1, price + 1, 2 * price} {
		_, _, err := f.engine.Deposit(ctx, st, depositReq("alice", amount, 0))
		assert.ErrorIs(t, err, models.ErrAmountMismatch)
	}
	assert.Equal(t, uint64(0), st.Raffle.TicketsSold)
}

func TestDeposit_AfterDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 3, true)
	price := st.Raffle.TicketPrice

	_, _, err := f.engine.Deposit(ctx, st, depositReq("alice", price, 0))
	require.NoError(t, err)

	f.advance(48 * time.Hour)
	events, _, err := f.engine.Deposit(ctx, st, depositReq("bob", price, 1))
	assert.ErrorIs(t, err, models.ErrRaffleNotSelling)

	// The lazy guard must have flipped the raffle to refunding even
	// though the deposit itself was rejected.
	require.Len(t, events, 1)
	assert.Equal(t, "refunding_entered", events[0].EventKind())
	assert.Equal(t, models.StatusRefunding, st.Raffle.Status)
}

func TestManualDraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 2, false)
	price := st.Raffle.TicketPrice

	_, _, err := f.engine.Deposit(ctx, st, depositReq("alice", price, 0))
	require.NoError(t, err)

	t.Run("draw before full rejected", func(t *testing.T) {
		_, err := f.engine.RequestDraw(ctx, st, f.organizerPub)
		assert.ErrorIs(t, err, models.ErrNotFull)
	})

	_, _, err = f.engine.Deposit(ctx, st, depositReq("bob", price, 1))
	require.NoError(t, err)
	// Without auto_draw the raffle stays selling when full.
	assert.Equal(t, models.StatusSelling, st.Raffle.Status)

	t.Run("non-organizer cannot draw", func(t *testing.T) {
		_, err := f.engine.RequestDraw(ctx, st, "mallory")
		assert.ErrorIs(t, err, models.ErrNotOrganizer)
	})

	events, err := f.engine.RequestDraw(ctx, st, f.organizerPub)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDrawing, st.Raffle.Status)
	require.Len(t, events, 1)
	assert.Equal(t, "randomness_requested", events[0].EventKind())
}

// Scenario E: settling twice returns AlreadySettled and keeps the winner.
func TestSettleDraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 3, true)
	price := st.Raffle.TicketPrice
	for i, owner := range []string{"alice", "bob", "carol"} {
		_, _, err := f.engine.Deposit(ctx, st, depositReq(owner, price, uint32(i)))
		require.NoError(t, err)
	}
	require.Equal(t, models.StatusDrawing, st.Raffle.Status)

	t.Run("missing randomness fails without mutation", func(t *testing.T) {
		_, err := f.engine.SettleDraw(ctx, st, nil)
		assert.ErrorIs(t, err, models.ErrRandomnessUnavailable)
		assert.Equal(t, models.StatusDrawing, st.Raffle.Status)
		assert.Nil(t, st.Raffle.WinnerSlot)
	})

	events, err := f.engine.SettleDraw(ctx, st, []byte("beacon-output-1"))
	require.NoError(t, err)
	require.NotNil(t, st.Raffle.WinnerSlot)
	winner := *st.Raffle.WinnerSlot
	assert.Less(t, winner, uint32(3))
	assert.Equal(t, models.StatusSettled, st.Raffle.Status)
	require.Len(t, events, 1)

	_, err = f.engine.SettleDraw(ctx, st, []byte("different-beacon"))
	assert.ErrorIs(t, err, models.ErrAlreadySettled)
	assert.Equal(t, winner, *st.Raffle.WinnerSlot)
}

func TestSettleDraw_RequiresDrawingState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 3, true)

	_, err := f.engine.SettleDraw(ctx, st, []byte("beacon"))
	assert.ErrorIs(t, err, models.ErrWrongState)
}

func TestClaimPrize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 2, true)
	price := st.Raffle.TicketPrice

	_, _, err := f.engine.SetPrize(ctx, st, f.organizerPub, "prize-nft")
	require.NoError(t, err)

	t.Run("prize cannot be set twice", func(t *testing.T) {
		_, _, err := f.engine.SetPrize(ctx, st, f.organizerPub, "other-nft")
		assert.ErrorIs(t, err, models.ErrPrizeAlreadySet)
	})

	_, _, err = f.engine.Deposit(ctx, st, depositReq("alice", price, 0))
	require.NoError(t, err)
	_, _, err = f.engine.Deposit(ctx, st, depositReq("bob", price, 1))
	require.NoError(t, err)
	_, err = f.engine.SettleDraw(ctx, st, []byte("beacon"))
	require.NoError(t, err)

	winner := st.Tickets[*st.Raffle.WinnerSlot].Owner
	loser := "alice"
	if winner == "alice" {
		loser = "bob"
	}

	t.Run("non-winner rejected", func(t *testing.T) {
		_, _, err := f.engine.ClaimPrize(ctx, st, loser)
		assert.ErrorIs(t, err, models.ErrNotWinner)
	})

	_, transfers, err := f.engine.ClaimPrize(ctx, st, winner)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "prize-nft", transfers[0].Asset)
	assert.Equal(t, winner, transfers[0].To)
	assert.True(t, st.Raffle.PrizeClaimed)

	t.Run("second claim rejected", func(t *testing.T) {
		_, _, err := f.engine.ClaimPrize(ctx, st, winner)
		assert.ErrorIs(t, err, models.ErrAlreadyClaimed)
	})
}

// Scenario C: deadline with 2 of 5 sold moves the raffle to refunding and
// each holder gets exactly one refund of exactly what they paid.
func TestRefundFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 5, true)
	price := st.Raffle.TicketPrice

	_, _, err := f.engine.Deposit(ctx, st, depositReq("alice", price, 0))
	require.NoError(t, err)
	_, _, err = f.engine.Deposit(ctx, st, depositReq("bob", price, 3))
	require.NoError(t, err)

	f.advance(48 * time.Hour)

	events, transfers, err := f.engine.ClaimRefund(ctx, st, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunding, st.Raffle.Status)
	assert.Equal(t, "refunding_entered", events[0].EventKind())
	require.Len(t, transfers, 1)
	assert.Equal(t, price, transfers[0].Amount)
	assert.Equal(t, "alice", transfers[0].To)

	t.Run("repeat refund rejected", func(t *testing.T) {
		_, _, err := f.engine.ClaimRefund(ctx, st, "alice", 0)
		assert.ErrorIs(t, err, models.ErrAlreadyClaimed)
	})

	t.Run("unsold slot has no ticket", func(t *testing.T) {
		_, _, err := f.engine.ClaimRefund(ctx, st, "carol", 2)
		assert.ErrorIs(t, err, models.ErrTicketNotFound)
	})

	t.Run("wrong owner rejected", func(t *testing.T) {
		_, _, err := f.engine.ClaimRefund(ctx, st, "mallory", 3)
		assert.ErrorIs(t, err, models.ErrNotTicketOwner)
	})

	_, transfers, err = f.engine.ClaimRefund(ctx, st, "bob", 3)
	require.NoError(t, err)
	require.Len(t, transfers, 1)

	// All sold tickets refunded: the raffle closes and escrow is empty.
	assert.Equal(t, models.StatusClosed, st.Raffle.Status)
	assert.Equal(t, uint64(0), st.Raffle.EscrowBalance)
}

func TestRefundBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 5, true)
	price := st.Raffle.TicketPrice

	_, _, err := f.engine.Deposit(ctx, st, depositReq("alice", 2*price, 0, 1))
	require.NoError(t, err)
	_, _, err = f.engine.Deposit(ctx, st, depositReq("bob", price, 4))
	require.NoError(t, err)

	f.advance(48 * time.Hour)

	_, transfers, refunded, err := f.engine.RefundBatch(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 3, refunded)
	assert.Len(t, transfers, 3)
	assert.Equal(t, models.StatusClosed, st.Raffle.Status)

	// The sweep is idempotent, but the raffle is closed afterwards.
	_, _, _, err = f.engine.RefundBatch(ctx, st)
	assert.ErrorIs(t, err, models.ErrWrongState)
}

func TestRefund_CredentialMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cfg := f.config(5)
	cfg.RefundMode = models.RefundModeCredential
	st, _, err := f.engine.Create(ctx, f.organizerPub, cfg)
	require.NoError(t, err)

	_, _, err = f.engine.Deposit(ctx, st, depositReq("alice", cfg.TicketPrice, 0))
	require.NoError(t, err)
	f.advance(48 * time.Hour)

	events, transfers, err := f.engine.ClaimRefund(ctx, st, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, transfers)

	var credentialID string
	for _, ev := range events {
		if issued, ok := ev.(CredentialIssued); ok {
			credentialID = issued.CredentialID
		}
	}
	require.NotEmpty(t, credentialID)

	stored, err := f.credentials.Get(ctx, credentialID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Owner)
	assert.Equal(t, uint32(1), stored.Slots)
}

func TestDeposit_CredentialRedemption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	issue := func(owner string) string {
		c := &models.Credential{ID: "cred-" + owner, Owner: owner, SourceRaffleID: "old", Slots: 1}
		require.NoError(t, f.credentials.Issue(ctx, c))
		return c.ID
	}

	newRaffle := func(mode models.TicketMode) *State {
		cfg := f.config(3)
		cfg.TicketMode = mode
		st, _, err := f.engine.Create(ctx, f.organizerPub, cfg)
		require.NoError(t, err)
		return st
	}

	t.Run("disabled mode rejects redemption", func(t *testing.T) {
		st := newRaffle(models.TicketModeDisabled)
		_, _, err := f.engine.Deposit(ctx, st, &DepositRequest{
			Owner: "alice", Slots: []uint32{0}, Amount: 0, CredentialID: issue("alice"),
		})
		assert.ErrorIs(t, err, models.ErrTicketModeDisabled)
	})

	t.Run("require burn consumes the credential", func(t *testing.T) {
		st := newRaffle(models.TicketModeRequireBurn)
		id := issue("bob")
		_, transfers, err := f.engine.Deposit(ctx, st, &DepositRequest{
			Owner: "bob", Slots: []uint32{1}, Amount: 0, CredentialID: id,
		})
		require.NoError(t, err)
		assert.Empty(t, transfers)
		assert.True(t, st.Tickets[1].ViaCredential)
		assert.Equal(t, uint64(0), st.Tickets[1].AmountPaid)

		_, err = f.credentials.Get(ctx, id)
		assert.ErrorIs(t, err, models.ErrCredentialNotFound)
	})

	t.Run("accept without burn keeps the credential", func(t *testing.T) {
		st := newRaffle(models.TicketModeAcceptWithoutBurn)
		id := issue("carol")
		_, _, err := f.engine.Deposit(ctx, st, &DepositRequest{
			Owner: "carol", Slots: []uint32{2}, Amount: 0, CredentialID: id,
		})
		require.NoError(t, err)

		_, err = f.credentials.Get(ctx, id)
		assert.NoError(t, err)
	})

	t.Run("mixed paid and free slots", func(t *testing.T) {
		st := newRaffle(models.TicketModeRequireBurn)
		id := issue("dave")
		price := st.Raffle.TicketPrice
		_, transfers, err := f.engine.Deposit(ctx, st, &DepositRequest{
			Owner: "dave", Slots: []uint32{0, 1}, Amount: price, CredentialID: id,
		})
		require.NoError(t, err)
		require.Len(t, transfers, 1)
		assert.Equal(t, price, transfers[0].Amount)
		assert.True(t, st.Tickets[0].ViaCredential)
		assert.False(t, st.Tickets[1].ViaCredential)
	})

	t.Run("someone else's credential rejected", func(t *testing.T) {
		st := newRaffle(models.TicketModeRequireBurn)
		id := issue("erin")
		_, _, err := f.engine.Deposit(ctx, st, &DepositRequest{
			Owner: "mallory", Slots: []uint32{0}, Amount: 0, CredentialID: id,
		})
		assert.ErrorIs(t, err, models.ErrNotCredentialOwner)
	})
}

func TestCollectProceedsAndClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 2, true)
	price := st.Raffle.TicketPrice

	_, _, err := f.engine.SetPrize(ctx, st, f.organizerPub, "prize-nft")
	require.NoError(t, err)
	_, _, err = f.engine.Deposit(ctx, st, depositReq("alice", price, 0))
	require.NoError(t, err)
	_, _, err = f.engine.Deposit(ctx, st, depositReq("bob", price, 1))
	require.NoError(t, err)
	_, err = f.engine.SettleDraw(ctx, st, []byte("beacon"))
	require.NoError(t, err)

	t.Run("only organizer collects", func(t *testing.T) {
		_, _, err := f.engine.CollectProceeds(ctx, st, "mallory")
		assert.ErrorIs(t, err, models.ErrNotOrganizer)
	})

	events, transfers, err := f.engine.CollectProceeds(ctx, st, f.organizerPub)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, 2*price, transfers[0].Amount)
	assert.Equal(t, uint64(0), st.Raffle.EscrowBalance)
	// Winner has not claimed yet, so the raffle is not closed.
	assert.Equal(t, models.StatusSettled, st.Raffle.Status)
	require.Len(t, events, 1)

	t.Run("double collection rejected", func(t *testing.T) {
		_, _, err := f.engine.CollectProceeds(ctx, st, f.organizerPub)
		assert.ErrorIs(t, err, models.ErrProceedsCollected)
	})

	winner := st.Tickets[*st.Raffle.WinnerSlot].Owner
	events, _, err = f.engine.ClaimPrize(ctx, st, winner)
	require.NoError(t, err)

	// Both proceeds and prize are done: the raffle closes.
	assert.Equal(t, models.StatusClosed, st.Raffle.Status)
	last := events[len(events)-1]
	assert.Equal(t, "raffle_closed", last.EventKind())
}

func TestCollectProceeds_CredentialOnlyRaffleCloses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cfg := f.config(1)
	cfg.TicketMode = models.TicketModeRequireBurn
	st, _, err := f.engine.Create(ctx, f.organizerPub, cfg)
	require.NoError(t, err)

	_, _, err = f.engine.SetPrize(ctx, st, f.organizerPub, "prize-nft")
	require.NoError(t, err)

	credential := &models.Credential{ID: "cred-alice", Owner: "alice", SourceRaffleID: "old", Slots: 1}
	require.NoError(t, f.credentials.Issue(ctx, credential))

	// Every slot is credential-backed, so escrow never sees a deposit.
	_, transfers, err := f.engine.Deposit(ctx, st, &DepositRequest{
		Owner: "alice", Slots: []uint32{0}, Amount: 0, CredentialID: credential.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, transfers)
	require.Equal(t, models.StatusDrawing, st.Raffle.Status)
	assert.Equal(t, uint64(0), st.Raffle.EscrowBalance)

	_, err = f.engine.SettleDraw(ctx, st, []byte("beacon"))
	require.NoError(t, err)

	_, _, err = f.engine.ClaimPrize(ctx, st, "alice")
	require.NoError(t, err)

	// Zero escrow must not block collection, or the raffle would be stuck
	// in settled with no closing path.
	events, transfers, err := f.engine.CollectProceeds(ctx, st, f.organizerPub)
	require.NoError(t, err)
	assert.Empty(t, transfers)
	assert.True(t, st.Raffle.ProceedsCollected)
	assert.Equal(t, models.StatusClosed, st.Raffle.Status)

	kinds := make([]string, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.EventKind())
	}
	assert.Equal(t, []string{"proceeds_collected", "raffle_closed"}, kinds)
}

func TestCreate_RejectsSupplyBeyondSlotRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cfg := f.config(3)
	cfg.RequiredTickets = 1<<32 + 2
	st, _, err := f.engine.Create(ctx, f.organizerPub, cfg)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	assert.Nil(t, st)
}

func TestInvariant_SlotExclusivityAndMonotonicSold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st := f.createFull(t, 10, false)
	price := st.Raffle.TicketPrice

	owners := []string{"a", "b", "c", "d"}
	for i := 0; i < 40; i++ {
		owner := owners[i%len(owners)]
		slot := uint32(i % 10)
		before := st.Raffle.TicketsSold
		_, _, err := f.engine.Deposit(ctx, st, depositReq(owner, price, slot))
		if err != nil {
			assert.Equal(t, before, st.Raffle.TicketsSold)
		}
		assert.GreaterOrEqual(t, st.Raffle.TicketsSold, before)
		assert.LessOrEqual(t, st.Raffle.TicketsSold, st.Raffle.RequiredTickets)
	}

	seen := make(map[uint32]string)
	for slot, ticket := range st.Tickets {
		_, dup := seen[slot]
		require.False(t, dup)
		seen[slot] = ticket.Owner
		assert.Equal(t, slot, ticket.Slot)
	}
	assert.Equal(t, uint64(10), st.Raffle.TicketsSold)
}
