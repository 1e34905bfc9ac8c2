package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Toucher is implemented by session stores that keep a liveness lease.
type Toucher interface {
	Touch(ctx context.Context) error
}

// Config holds cron specs; an empty spec disables the job.
type Config struct {
	ReconcileSpec string
	SweepSpec     string
	Timeout       time.Duration
}

// Scheduler runs background maintenance: leaderboard reconciliation for
// active quizzes and sweeping of idle sessions.
type Scheduler struct {
	cron        *cron.Cron
	quizzes     app.QuizStore
	leaderboard *app.Leaderboard
	sessions    *app.QuizService
	toucher     Toucher
	clock       app.Clock
	timeout     time.Duration
}

func NewScheduler(quizzes app.QuizStore, leaderboard *app.Leaderboard, sessions *app.QuizService, toucher Toucher, clock app.Clock) *Scheduler {
	if clock == nil {
		clock = app.SystemClock()
	}
	return &Scheduler{
		cron:        cron.New(),
		quizzes:     quizzes,
		leaderboard: leaderboard,
		sessions:    sessions,
		toucher:     toucher,
		clock:       clock,
		timeout:     time.Minute,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start(cfg Config) error {
	if cfg.Timeout > 0 {
		s.timeout = cfg.Timeout
	}
	if cfg.ReconcileSpec != "" {
		if _, err := s.cron.AddFunc(cfg.ReconcileSpec, s.reconcileJob); err != nil {
			return err
		}
	}
	if cfg.SweepSpec != "" {
		if _, err := s.cron.AddFunc(cfg.SweepSpec, s.sweepJob); err != nil {
			return err
		}
	}
	s.cron.Start()
	log.Printf("background jobs scheduled (reconcile %q, sweep %q)", cfg.ReconcileSpec, cfg.SweepSpec)
	return nil
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) reconcileJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.Reconcile(ctx); err != nil {
		log.Printf("leaderboard reconcile failed: %v", err)
	}
}

func (s *Scheduler) sweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.Sweep(ctx)
}

// Reconcile recomputes every participant total of every active quiz and
// returns how many totals were rewritten. One failing quiz does not stop the rest.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	quizzes, err := s.quizzes.ListQuizzesByState(ctx, domain.QuizActive)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, quiz := range quizzes {
		n, err := s.leaderboard.ReconcileQuiz(ctx, quiz.ID)
		if err != nil {
			log.Printf("reconcile quiz %s: %v", quiz.ID, err)
			continue
		}
		total += n
	}
	return total, nil
}

// Sweep abandons detached sessions past their idle timeout and renews the
// liveness lease of the rest.
func (s *Scheduler) Sweep(ctx context.Context) int {
	n := s.sessions.SweepIdle(s.clock.Now())
	if n > 0 {
		log.Printf("swept %d idle sessions", n)
	}
	if s.toucher != nil {
		if err := s.toucher.Touch(ctx); err != nil {
			log.Printf("session lease renewal failed: %v", err)
		}
	}
	return n
}
