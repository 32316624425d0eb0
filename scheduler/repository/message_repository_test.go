package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yedidyatob/WhatsAppAssistant/scheduler/domain"
)

var testDBSeq atomic.Int64

func setupGormRepo(t *testing.T) *ScheduledMessageGormRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared&_foreign_keys=on", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewScheduledMessageGormRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

// eachRepo runs the same assertions against the gorm and the in-memory
// implementations so both stay contract-equal.
func eachRepo(t *testing.T, run func(t *testing.T, repo domain.IScheduledMessageRepository)) {
	t.Run("gorm", func(t *testing.T) {
		run(t, setupGormRepo(t))
	})
	t.Run("memory", func(t *testing.T) {
		run(t, NewScheduledMessageMemoryRepository())
	})
}

func fixtureMessage(id uuid.UUID, sendAt time.Time) domain.ScheduledMessage {
	now := sendAt.Add(-time.Hour)
	return domain.ScheduledMessage{
		ID:             id,
		ChatID:         "15551234567@s.whatsapp.net",
		FromChatID:     "15550001111@s.whatsapp.net",
		Text:           "reminder",
		SendAt:         sendAt,
		Status:         domain.StatusScheduled,
		IdempotencyKey: "key-" + id.String(),
		Source:         "whatsapp",
		Reason:         "whatsapp:" + id.String(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCreateAndGetByID(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		sendAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		msg := fixtureMessage(uuid.New(), sendAt)

		require.NoError(t, repo.Create(ctx, msg))

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		require.Equal(t, msg.ID, got.ID)
		require.Equal(t, msg.ChatID, got.ChatID)
		require.Equal(t, domain.StatusScheduled, got.Status)
		require.True(t, got.SendAt.Equal(sendAt))
		require.Equal(t, 0, got.AttemptCount)

		_, err = repo.GetByID(ctx, uuid.New())
		require.ErrorIs(t, err, domain.ErrMessageNotFound)
	})
}

func TestCreateIdempotencyConflict(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		sendAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

		first := fixtureMessage(uuid.New(), sendAt)
		require.NoError(t, repo.Create(ctx, first))

		duplicate := fixtureMessage(uuid.New(), sendAt)
		duplicate.IdempotencyKey = first.IdempotencyKey
		require.ErrorIs(t, repo.Create(ctx, duplicate), domain.ErrIdempotencyConflict)

		got, err := repo.FindByIdempotencyKey(ctx, first.IdempotencyKey)
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)
	})
}

func TestLockForSendingExactlyOnce(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		msg := fixtureMessage(uuid.New(), now.Add(-time.Minute))
		require.NoError(t, repo.Create(ctx, msg))

		const workers = 8
		var wg sync.WaitGroup
		wins := make(chan bool, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				locked, err := repo.LockForSending(ctx, msg.ID, now)
				if err == nil && locked {
					wins <- true
				}
			}()
		}
		wg.Wait()
		close(wins)

		winners := 0
		for range wins {
			winners++
		}
		require.Equal(t, 1, winners)

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusLocked, got.Status)
		require.NotNil(t, got.LockedAt)
	})
}

func TestLockForSendingStaleLease(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		msg := fixtureMessage(uuid.New(), t0.Add(-time.Minute))
		require.NoError(t, repo.Create(ctx, msg))

		locked, err := repo.LockForSending(ctx, msg.ID, t0)
		require.NoError(t, err)
		require.True(t, locked)

		// lease still fresh at +299s
		locked, err = repo.LockForSending(ctx, msg.ID, t0.Add(299*time.Second))
		require.NoError(t, err)
		require.False(t, locked)

		// claimable again at +301s
		locked, err = repo.LockForSending(ctx, msg.ID, t0.Add(301*time.Second))
		require.NoError(t, err)
		require.True(t, locked)
	})
}

func TestListUpcoming(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

		due := fixtureMessage(uuid.New(), now.Add(-2*time.Minute))
		require.NoError(t, repo.Create(ctx, due))

		future := fixtureMessage(uuid.New(), now.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, future))

		cancelled := fixtureMessage(uuid.New(), now.Add(-time.Minute))
		require.NoError(t, repo.Create(ctx, cancelled))
		require.NoError(t, repo.Cancel(ctx, cancelled.ID, now))

		freshLock := fixtureMessage(uuid.New(), now.Add(-5*time.Minute))
		require.NoError(t, repo.Create(ctx, freshLock))
		locked, err := repo.LockForSending(ctx, freshLock.ID, now.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, locked)

		staleLock := fixtureMessage(uuid.New(), now.Add(-10*time.Minute))
		require.NoError(t, repo.Create(ctx, staleLock))
		locked, err = repo.LockForSending(ctx, staleLock.ID, now.Add(-6*time.Minute))
		require.NoError(t, err)
		require.True(t, locked)

		got, err := repo.ListUpcoming(ctx, now, 10)
		require.NoError(t, err)

		ids := make([]uuid.UUID, 0, len(got))
		for _, m := range got {
			ids = append(ids, m.ID)
		}
		require.ElementsMatch(t, []uuid.UUID{due.ID, staleLock.ID}, ids)
		// ordered by send_at ascending
		require.Equal(t, staleLock.ID, got[0].ID)
	})
}

func TestCancelGuardsSent(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		msg := fixtureMessage(uuid.New(), now.Add(-time.Minute))
		require.NoError(t, repo.Create(ctx, msg))

		require.NoError(t, repo.MarkSent(ctx, msg.ID, now))
		require.NoError(t, repo.Cancel(ctx, msg.ID, now))

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusSent, got.Status)
		require.NotNil(t, got.SentAt)
	})
}

func TestMarkFailedIncrementsAttempts(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		msg := fixtureMessage(uuid.New(), now)
		require.NoError(t, repo.Create(ctx, msg))

		require.NoError(t, repo.MarkFailed(ctx, msg.ID, "gateway timeout", now))
		require.NoError(t, repo.MarkFailed(ctx, msg.ID, "gateway refused", now.Add(time.Minute)))

		got, err := repo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusFailed, got.Status)
		require.Equal(t, 2, got.AttemptCount)
		require.Equal(t, "gateway refused", got.LastError)
		// updated_at carries the caller's instant, not the wall clock
		require.True(t, got.UpdatedAt.Equal(now.Add(time.Minute)))
	})
}

func TestFindByIDPrefixForSender(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		sendAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

		mine := fixtureMessage(uuid.MustParse("aabbccdd-eeff-4000-8000-000000000001"), sendAt)
		require.NoError(t, repo.Create(ctx, mine))

		theirs := fixtureMessage(uuid.MustParse("aabbccdd-eeff-4000-8000-000000000002"), sendAt)
		theirs.FromChatID = "15559998888@s.whatsapp.net"
		theirs.IdempotencyKey = "other-key"
		require.NoError(t, repo.Create(ctx, theirs))

		got, err := repo.FindByIDPrefixForSender(ctx, "aabbccddeeff", "15550001111", 2)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, mine.ID, got[0].ID)

		// uppercase prefixes match too
		got, err = repo.FindByIDPrefixForSender(ctx, "AABBCCDDEEFF", "15550001111", 2)
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = repo.FindByIDPrefixForSender(ctx, "aabbccddeeff", "14440000000", 2)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func TestFindByIDPrefixForSenderAmbiguous(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		sendAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

		for i := 0; i < 2; i++ {
			msg := fixtureMessage(uuid.MustParse(fmt.Sprintf("aabbccdd-eeff-4000-8000-00000000000%d", i+1)), sendAt)
			msg.IdempotencyKey = fmt.Sprintf("key-%d", i)
			require.NoError(t, repo.Create(ctx, msg))
		}

		got, err := repo.FindByIDPrefixForSender(ctx, "aabbccddeeff", "15550001111", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
	})
}

func TestListScheduledForSender(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

		later := fixtureMessage(uuid.New(), base.Add(2*time.Hour))
		require.NoError(t, repo.Create(ctx, later))

		sooner := fixtureMessage(uuid.New(), base.Add(time.Hour))
		sooner.IdempotencyKey = "sooner-key"
		require.NoError(t, repo.Create(ctx, sooner))

		cancelled := fixtureMessage(uuid.New(), base.Add(30*time.Minute))
		cancelled.IdempotencyKey = "cancelled-key"
		require.NoError(t, repo.Create(ctx, cancelled))
		require.NoError(t, repo.Cancel(ctx, cancelled.ID, base))

		got, err := repo.ListScheduledForSender(ctx, "15550001111", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, sooner.ID, got[0].ID)
		require.Equal(t, later.ID, got[1].ID)
	})
}

func TestFindScheduledByConfirmationMessageIDForSender(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		msg := fixtureMessage(uuid.New(), now)
		require.NoError(t, repo.Create(ctx, msg))
		require.NoError(t, repo.SetConfirmationMessageID(ctx, msg.ID, "wamid.CONF1", now))

		got, err := repo.FindScheduledByConfirmationMessageIDForSender(ctx, "wamid.CONF1", "15550001111")
		require.NoError(t, err)
		require.Equal(t, msg.ID, got.ID)
		require.True(t, got.UpdatedAt.Equal(now))

		// wrong sender does not see it
		_, err = repo.FindScheduledByConfirmationMessageIDForSender(ctx, "wamid.CONF1", "14440000000")
		require.ErrorIs(t, err, domain.ErrMessageNotFound)

		// terminal records stop matching
		require.NoError(t, repo.Cancel(ctx, msg.ID, now))
		_, err = repo.FindScheduledByConfirmationMessageIDForSender(ctx, "wamid.CONF1", "15550001111")
		require.ErrorIs(t, err, domain.ErrMessageNotFound)
	})
}

func TestFindByIDPrefix(t *testing.T) {
	eachRepo(t, func(t *testing.T, repo domain.IScheduledMessageRepository) {
		ctx := context.Background()
		sendAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

		mine := fixtureMessage(uuid.MustParse("aabbccdd-eeff-4000-8000-000000000001"), sendAt)
		require.NoError(t, repo.Create(ctx, mine))

		theirs := fixtureMessage(uuid.MustParse("aabbccdd-eeff-4000-8000-000000000002"), sendAt)
		theirs.FromChatID = "15559998888@s.whatsapp.net"
		theirs.IdempotencyKey = "other-key"
		require.NoError(t, repo.Create(ctx, theirs))

		// no sender filter: records of both senders match
		got, err := repo.FindByIDPrefix(ctx, "aabbccddeeff", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)

		// uppercase prefixes match too
		got, err = repo.FindByIDPrefix(ctx, "AABBCCDDEEFF40008000000000000001", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, mine.ID, got[0].ID)

		got, err = repo.FindByIDPrefix(ctx, "ffffffffffff", 10)
		require.NoError(t, err)
		require.Empty(t, got)

		// limit caps the result set
		got, err = repo.FindByIDPrefix(ctx, "aabbccddeeff", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
	})
}
