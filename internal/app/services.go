package app

// Deps are the adapters the use cases run on.
type Deps struct {
	Store Store
	// Questions overrides Store as the question source of live sessions,
	// typically with a read-through cache.
	Questions QuestionSource
	Sessions  SessionRepository
	Notifier  Notifier
	Blobs     BlobStore
	Clock     Clock
	Options   Options
}

// Services bundles every use case over one set of adapters.
type Services struct {
	Lifecycle   *Lifecycle
	Questions   *QuestionBank
	Leaderboard *Leaderboard
	Grading     *Grading
	Profiles    *Profiles
	Quizzes     *QuizService
}

func NewServices(deps Deps) *Services {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	questions := deps.Questions
	if questions == nil {
		questions = deps.Store
	}
	opts := deps.Options.withDefaults()

	lifecycle := NewLifecycle(deps.Store, deps.Notifier, deps.Clock, opts)
	leaderboard := NewLeaderboard(deps.Store, deps.Store, deps.Store, deps.Notifier, deps.Clock, opts)
	sessionDeps := SessionDeps{
		Questions:     questions,
		Answers:       deps.Store,
		Leaderboard:   leaderboard,
		Clock:         deps.Clock,
		SubmitTimeout: opts.SubmitTimeout,
	}

	return &Services{
		Lifecycle:   lifecycle,
		Questions:   NewQuestionBank(lifecycle, deps.Store, deps.Clock),
		Leaderboard: leaderboard,
		Grading:     NewGrading(lifecycle, deps.Store, deps.Store, deps.Store, leaderboard),
		Profiles:    NewProfiles(deps.Store, deps.Blobs, deps.Clock),
		Quizzes:     NewQuizService(lifecycle, deps.Store, deps.Sessions, deps.Notifier, sessionDeps, opts),
	}
}
