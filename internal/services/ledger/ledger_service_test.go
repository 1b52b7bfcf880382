package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cityperks/backend/internal/loyalty"
	"github.com/cityperks/backend/internal/models"
	"github.com/cityperks/backend/internal/queue"
	"github.com/cityperks/backend/internal/services/passsync"
	"github.com/cityperks/backend/internal/services/redemption"
	"github.com/cityperks/backend/internal/services/token"
	"github.com/cityperks/backend/internal/services/walletpush"
	"github.com/cityperks/backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testToken = "counter-token"

type fakePassClient struct {
	createErr  error
	lastValues map[string]string
}

func (f *fakePassClient) CreatePass(ctx context.Context, creds walletpush.Credentials, req walletpush.CreatePassRequest) (*walletpush.CreatePassResponse, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &walletpush.CreatePassResponse{SerialNumber: "serial-" + req.UserRef}, nil
}

func (f *fakePassClient) UpdateField(ctx context.Context, creds walletpush.Credentials, serial, field, value string, push bool) error {
	if f.lastValues == nil {
		f.lastValues = make(map[string]string)
	}
	f.lastValues[field] = value
	return nil
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	client *fakePassClient
	jobs   *queue.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenTestDB(t)
	client := &fakePassClient{}
	adapter := passsync.NewAdapter(db, client)
	jobs := queue.NewQueue(db, nil)
	svc := NewService(
		db,
		token.NewService(db, 30*time.Minute),
		redemption.NewService(db, adapter, 5*time.Minute),
		adapter,
		jobs,
	)
	return &fixture{db: db, svc: svc, client: client, jobs: jobs}
}

func (f *fixture) seedProgram(t *testing.T, progType models.ProgramType, threshold int, status models.ProgramStatus) *models.LoyaltyProgram {
	t.Helper()
	now := time.Now()
	prog := models.LoyaltyProgram{
		PublicID:                "cafe-" + uuid.NewString()[:8],
		BusinessID:              uuid.New(),
		City:                    "springfield",
		Type:                    progType,
		RewardThreshold:         threshold,
		RewardDescription:       "Free coffee",
		Status:                  status,
		WalletPushTemplateID:    "tmpl-1",
		WalletPushAPIKey:        "key-1",
		CounterQRToken:          testToken,
		CounterQRTokenRotatedAt: &now,
	}
	require.NoError(t, f.db.Create(&prog).Error)
	return &prog
}

func TestJoinCreatesMembershipAndPass(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)

	result, err := f.svc.Join(prog.PublicID, "visitor-1")
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, 0, result.Membership.StampsBalance)
	require.NotNil(t, result.Pass)
	assert.Equal(t, "serial-visitor-1", result.Pass.SerialNumber)
}

func TestJoinExistingMembership(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)

	first, err := f.svc.Join(prog.PublicID, "visitor-1")
	require.NoError(t, err)
	second, err := f.svc.Join(prog.PublicID, "visitor-1")
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.Membership.ID, second.Membership.ID)

	var count int64
	f.db.Model(&models.LoyaltyMembership{}).Where("program_id = ?", prog.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestJoinRequiresActiveProgram(t *testing.T) {
	f := newFixture(t)
	paused := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusPaused)

	_, err := f.svc.Join(paused.PublicID, "visitor-1")
	assert.ErrorIs(t, err, loyalty.ErrProgramNotActive)

	_, err = f.svc.Join("no-such-program", "visitor-1")
	assert.ErrorIs(t, err, loyalty.ErrProgramNotFound)
}

func TestJoinQueuesRetryWhenIssuanceFails(t *testing.T) {
	f := newFixture(t)
	f.client.createErr = errors.New("issuing service down")
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)

	result, err := f.svc.Join(prog.PublicID, "visitor-1")
	require.NoError(t, err)

	// Join still succeeds; the pass catches up via the queued retry.
	assert.True(t, result.Created)
	assert.Nil(t, result.Pass)

	var jobs []queue.Job
	require.NoError(t, f.db.Where("type = ?", queue.JobTypePassIssueRetry).Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, queue.JobStatusPending, jobs[0].Status)
	assert.NotNil(t, jobs[0].NextRetry)
}

func TestEarnIncrementsBalance(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)

	result, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 1, "counter_scan")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Balance)
	assert.False(t, result.RewardReady)
	assert.False(t, result.Crossed)

	var events []models.LoyaltyEarnEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Amount)
	assert.Equal(t, 1, events[0].BalanceAfter)
	assert.Equal(t, "counter_scan", events[0].Source)
}

func TestEarnCrossingThreshold(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)

	for i := 0; i < 4; i++ {
		result, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 1, "counter_scan")
		require.NoError(t, err)
		assert.False(t, result.Crossed)
	}

	crossing, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 1, "counter_scan")
	require.NoError(t, err)
	assert.Equal(t, 5, crossing.Balance)
	assert.True(t, crossing.RewardReady)
	assert.True(t, crossing.Crossed)

	// An earn past the threshold is ready but no longer the crossing one.
	past, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 1, "counter_scan")
	require.NoError(t, err)
	assert.True(t, past.RewardReady)
	assert.False(t, past.Crossed)
}

func TestEarnRejectsInvalidToken(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)

	_, err := f.svc.Earn(prog.PublicID, "visitor-1", "wrong-token", 1, "counter_scan")
	assert.ErrorIs(t, err, loyalty.ErrInvalidToken)

	// Nothing was created or incremented.
	var count int64
	f.db.Model(&models.LoyaltyMembership{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestEarnRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)

	_, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 0, "counter_scan")
	assert.ErrorIs(t, err, loyalty.ErrInvalidState)
	_, err = f.svc.Earn(prog.PublicID, "visitor-1", testToken, -3, "counter_scan")
	assert.ErrorIs(t, err, loyalty.ErrInvalidState)
}

func TestEarnRequiresActiveProgram(t *testing.T) {
	f := newFixture(t)
	ended := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusEnded)

	_, err := f.svc.Earn(ended.PublicID, "visitor-1", testToken, 1, "counter_scan")
	assert.ErrorIs(t, err, loyalty.ErrProgramNotActive)
}

func TestRedeemStampsResetsToZero(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)
	_, err := f.svc.Join(prog.PublicID, "visitor-1")
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		_, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 1, "counter_scan")
		require.NoError(t, err)
	}

	redeemed, err := f.svc.Redeem(prog.PublicID, "visitor-1")
	require.NoError(t, err)

	assert.Equal(t, models.RedemptionStatusRedeemed, redeemed.Status)
	assert.Equal(t, "Free coffee", redeemed.RewardDescription)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), redeemed.DisplayExpiresAt, 5*time.Second)

	// Stamps reset to zero, not decrement by the threshold.
	membership, err := f.svc.GetMembership(prog.ID, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, 0, membership.StampsBalance)

	assert.Equal(t, "Reward redeemed: Free coffee", f.client.lastValues[passsync.FieldStatus])
}

func TestRedeemPointsKeepsRemainder(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypePoints, 100, models.ProgramStatusActive)
	_, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 120, "counter_scan")
	require.NoError(t, err)

	_, err = f.svc.Redeem(prog.PublicID, "visitor-1")
	require.NoError(t, err)

	membership, err := f.svc.GetMembership(prog.ID, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, 20, membership.PointsBalance)
}

func TestRedeemInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)
	_, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 3, "counter_scan")
	require.NoError(t, err)

	_, err = f.svc.Redeem(prog.PublicID, "visitor-1")
	assert.ErrorIs(t, err, loyalty.ErrInsufficientBalance)

	// Nothing was drained or recorded.
	membership, err := f.svc.GetMembership(prog.ID, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, 3, membership.StampsBalance)

	var count int64
	f.db.Model(&models.LoyaltyRedemption{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestRedeemTwiceNeedsTwoRewards(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)
	_, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 5, "counter_scan")
	require.NoError(t, err)

	_, err = f.svc.Redeem(prog.PublicID, "visitor-1")
	require.NoError(t, err)
	_, err = f.svc.Redeem(prog.PublicID, "visitor-1")
	assert.ErrorIs(t, err, loyalty.ErrInsufficientBalance)

	var count int64
	f.db.Model(&models.LoyaltyRedemption{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestConcurrentRedeemsOneWinner(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)
	_, err := f.svc.Earn(prog.PublicID, "visitor-1", testToken, 5, "counter_scan")
	require.NoError(t, err)

	// Two redeems race over a balance that clears the threshold once.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Redeem(prog.PublicID, "visitor-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, loyalty.ErrInsufficientBalance)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	membership, err := f.svc.GetMembership(prog.ID, "visitor-1")
	require.NoError(t, err)
	assert.Equal(t, 0, membership.StampsBalance)

	var count int64
	f.db.Model(&models.LoyaltyRedemption{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRedeemUnknownMembership(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)

	_, err := f.svc.Redeem(prog.PublicID, "stranger")
	assert.ErrorIs(t, err, loyalty.ErrMembershipNotFound)
}

func TestListMembersOrdering(t *testing.T) {
	f := newFixture(t)
	prog := f.seedProgram(t, models.ProgramTypeStamps, 5, models.ProgramStatusActive)

	_, err := f.svc.Join(prog.PublicID, "visitor-1")
	require.NoError(t, err)
	_, err = f.svc.Join(prog.PublicID, "visitor-2")
	require.NoError(t, err)
	// visitor-1 becomes the most recently active.
	_, err = f.svc.Earn(prog.PublicID, "visitor-1", testToken, 1, "counter_scan")
	require.NoError(t, err)

	members, err := f.svc.ListMembers(prog.ID, 10)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "visitor-1", members[0].UserWalletPassID)
}
