package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/adapter"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/repository"
)

// broadcastMaxAttempts bounds retries for a single recipient when the
// chat platform answers with a rate limit.
const broadcastMaxAttempts = 3

// BroadcastProgress is a point-in-time snapshot of a mass send. Callers
// poll it; the running job never blocks on readers.
type BroadcastProgress struct {
	Total      int
	Sent       int
	Failed     int
	Running    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// BroadcastUseCase delivers one message to every registered non-admin
// user. Delivery runs detached from the triggering request, paced by a
// fixed inter-send delay, with bounded backoff on rate limits. At most
// one broadcast runs at a time; a started one runs to completion.
type BroadcastUseCase struct {
	users repository.UserRepository
	chat  adapter.ChatProvider
	log   *zerolog.Logger

	interSendDelay time.Duration
	adminIDs       map[int64]struct{}

	mu       sync.Mutex
	progress BroadcastProgress
	done     chan struct{}

	now   func() time.Time
	sleep func(time.Duration)
}

func NewBroadcastUseCase(
	users repository.UserRepository,
	chat adapter.ChatProvider,
	interSendDelay time.Duration,
	adminIDs []int64,
	logger *zerolog.Logger,
) *BroadcastUseCase {
	l := logger.With().Str("component", "BroadcastUC").Logger()
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &BroadcastUseCase{
		users:          users,
		chat:           chat,
		log:            &l,
		interSendDelay: interSendDelay,
		adminIDs:       admins,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// Broadcast queues text for delivery to every non-admin user and returns
// the number of recipients immediately. The send loop continues in the
// background; use Progress to observe it.
func (uc *BroadcastUseCase) Broadcast(ctx context.Context, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, domain.ErrInvalidArgument
	}

	ids, err := uc.users.ListTelegramIDs(ctx, repository.NoTX)
	if err != nil {
		return 0, err
	}
	targets := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, isAdmin := uc.adminIDs[id]; isAdmin {
			continue
		}
		targets = append(targets, id)
	}

	uc.mu.Lock()
	if uc.progress.Running {
		uc.mu.Unlock()
		return 0, domain.ErrBroadcastRunning
	}
	uc.progress = BroadcastProgress{
		Total:     len(targets),
		Running:   true,
		StartedAt: uc.now(),
	}
	done := make(chan struct{})
	uc.done = done
	uc.mu.Unlock()

	uc.log.Info().Int("targets", len(targets)).Msg("broadcast queued")
	go uc.run(targets, text, done)
	return len(targets), nil
}

// Progress returns a copy of the current broadcast state.
func (uc *BroadcastUseCase) Progress() BroadcastProgress {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.progress
}

// run is the detached delivery loop. It deliberately uses its own
// context: the broadcast outlives the request that triggered it and is
// never canceled mid-flight.
func (uc *BroadcastUseCase) run(targets []int64, text string, done chan struct{}) {
	defer close(done)
	ctx := context.Background()

	for i, tgID := range targets {
		if i > 0 {
			uc.sleep(uc.interSendDelay)
		}
		ok := uc.sendWithBackoff(ctx, tgID, text)
		uc.mu.Lock()
		if ok {
			uc.progress.Sent++
		} else {
			uc.progress.Failed++
		}
		uc.mu.Unlock()
	}

	uc.mu.Lock()
	uc.progress.Running = false
	uc.progress.FinishedAt = uc.now()
	sent, failed := uc.progress.Sent, uc.progress.Failed
	uc.mu.Unlock()
	uc.log.Info().Int("sent", sent).Int("failed", failed).Msg("broadcast finished")
}

// sendWithBackoff retries only on rate limits, honoring the platform's
// retry-after hint. Any other delivery error fails the recipient without
// affecting the rest of the run.
func (uc *BroadcastUseCase) sendWithBackoff(ctx context.Context, tgID int64, text string) bool {
	for attempt := 1; ; attempt++ {
		err := uc.chat.SendMessage(ctx, tgID, text)
		if err == nil {
			return true
		}
		var rle *adapter.RateLimitedError
		if !errors.As(err, &rle) || attempt >= broadcastMaxAttempts {
			uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("broadcast delivery failed")
			return false
		}
		uc.sleep(rle.RetryAfter)
	}
}
