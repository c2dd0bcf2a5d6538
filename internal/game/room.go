package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"trivia-show-service/internal/domain"
)

// Settings are the per-room rules taken from configuration.
type Settings struct {
	MaxPlayers    int
	QuestionTime  time.Duration
	DefaultPoints int
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{MaxPlayers: 8, QuestionTime: 20 * time.Second, DefaultPoints: 10}
}

// Room is the authoritative aggregate for one show. It is not safe for
// concurrent use: the owner serializes every call. Each successful
// operation queues the events observers must receive; Drain hands them out.
// A rejected operation returns before mutating anything and queues nothing.
type Room struct {
	Code string

	clock    clockwork.Clock
	settings Settings

	phase   domain.Phase
	players map[string]*domain.Player
	order   []string

	staged     []domain.Question
	stagedType domain.QuestionType

	round     *Round
	rounds    int
	lastRound *domain.RoundLeaderboardPayload
	final     *domain.LeaderboardPayload

	outbox []domain.Event
}

// NewRoom returns a room in the lobby phase.
func NewRoom(code string, clock clockwork.Clock, settings Settings) *Room {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Room{
		Code:     NormalizeCode(code),
		clock:    clock,
		settings: settings,
		phase:    domain.PhaseLobby,
		players:  make(map[string]*domain.Player),
	}
}

// NormalizeCode makes room codes case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Phase is the current lifecycle phase.
func (r *Room) Phase() domain.Phase { return r.phase }

// Round is the active round, nil outside round_active.
func (r *Room) Round() *Round { return r.round }

// Player returns the roster entry for id.
func (r *Room) Player(id string) (*domain.Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Drain returns and clears the queued events.
func (r *Room) Drain() []domain.Event {
	out := r.outbox
	r.outbox = nil
	return out
}

func (r *Room) emit(ev domain.Event) {
	r.outbox = append(r.outbox, ev)
}

// Join adds or refreshes a roster entry and queues the roster broadcast and
// a state snapshot for the joining observer.
func (r *Room) Join(id, name string, role domain.Role) (*domain.Player, error) {
	if r.phase == domain.PhaseFinished {
		return nil, domain.ErrRoomClosed
	}
	now := r.clock.Now()
	name = strings.TrimSpace(name)

	if p, ok := r.players[id]; ok {
		if p.Role != role {
			return nil, fmt.Errorf("%w: session joined as %s", domain.ErrForbidden, p.Role)
		}
		if name != "" {
			p.Name = name
		}
		p.Connected = true
		p.LastUpdated = now
		r.emitRoster(domain.EventPlayers)
		r.emit(domain.Event{Type: domain.EventState, Payload: r.Snapshot(id), To: id})
		return p, nil
	}

	if role == domain.RolePlayer && r.settings.MaxPlayers > 0 && len(r.playerIDs()) >= r.settings.MaxPlayers {
		return nil, domain.ErrRoomFull
	}
	if name == "" {
		switch role {
		case domain.RoleHost:
			name = "HOST"
		case domain.RolePresenter:
			name = "Presenter"
		default:
			return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidState)
		}
	}
	p := &domain.Player{
		ID:          id,
		Name:        name,
		Role:        role,
		Connected:   true,
		JoinedAt:    now,
		LastUpdated: now,
	}
	r.players[id] = p
	r.order = append(r.order, id)
	r.emitRoster(domain.EventPlayers)
	r.emit(domain.Event{Type: domain.EventState, Payload: r.Snapshot(id), To: id})
	return p, nil
}

// Disconnect marks the observer as gone without dropping its score.
func (r *Room) Disconnect(id string) {
	p, ok := r.players[id]
	if !ok || !p.Connected {
		return
	}
	p.Connected = false
	p.LastUpdated = r.clock.Now()
	if p.Role == domain.RolePlayer {
		r.emitRoster(domain.EventPlayers)
	}
}

// Connected reports whether any observer is still connected.
func (r *Room) Connected() bool {
	for _, p := range r.players {
		if p.Connected {
			return true
		}
	}
	return false
}

// LoadQuestions stages the question queue the next round will consume.
func (r *Room) LoadQuestions(callerID string, typ domain.QuestionType, questions []domain.Question) error {
	if err := r.requireHost(callerID); err != nil {
		return err
	}
	if r.phase != domain.PhaseLobby && r.phase != domain.PhaseBetweenRounds {
		return fmt.Errorf("%w: questions can only be loaded between rounds", domain.ErrInvalidState)
	}
	staged := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
		if q.Type != typ {
			return fmt.Errorf("%w: question %s is %s, round is %s", domain.ErrInvalidQuestion, q.ID, q.Type, typ)
		}
		staged = append(staged, q)
	}
	r.staged = staged
	r.stagedType = typ
	return nil
}

// Staged is the number of loaded questions waiting for a round.
func (r *Room) Staged() int { return len(r.staged) }

// StartRound consumes the staged queue into a fresh round.
func (r *Room) StartRound(callerID string, typ domain.QuestionType) (domain.RoundView, error) {
	if err := r.requireHost(callerID); err != nil {
		return domain.RoundView{}, err
	}
	if r.phase != domain.PhaseLobby && r.phase != domain.PhaseBetweenRounds {
		return domain.RoundView{}, fmt.Errorf("%w: cannot start a round in phase %s", domain.ErrInvalidState, r.phase)
	}
	if len(r.staged) == 0 {
		return domain.RoundView{}, fmt.Errorf("%w: no questions loaded", domain.ErrInvalidState)
	}
	if r.stagedType != typ {
		return domain.RoundView{}, fmt.Errorf("%w: loaded questions are %s, not %s", domain.ErrInvalidState, r.stagedType, typ)
	}

	r.rounds++
	r.round = newRound(r.rounds, typ, r.staged)
	r.staged = nil
	r.phase = domain.PhaseRoundActive

	view := r.round.View()
	r.emit(domain.Event{Type: domain.EventRoundStarted, Payload: domain.RoundStartedPayload{Round: view}})
	return view, nil
}

// StartNextQuestion activates the next queued question, or the queued
// question with pickID.
func (r *Room) StartNextQuestion(callerID, pickID string) (*QuestionSession, error) {
	if err := r.requireHost(callerID); err != nil {
		return nil, err
	}
	if r.phase != domain.PhaseRoundActive || r.round == nil {
		return nil, fmt.Errorf("%w: no round in progress", domain.ErrInvalidState)
	}
	qs, err := r.round.StartNextQuestion(pickID, r.clock.Now(), r.settings.QuestionTime)
	if err != nil {
		return nil, err
	}

	full := qs.Question
	public := full.Redacted()
	host := []domain.Role{domain.RoleHost}
	others := []domain.Role{domain.RolePlayer, domain.RolePresenter}
	if full.Type.Progressive() {
		visible := qs.VisibleSteps()
		r.emit(domain.Event{Type: domain.EventSequenceStarted, Roles: host, Payload: domain.SequenceStartedPayload{Question: full, VisibleSteps: visible}})
		r.emit(domain.Event{Type: domain.EventSequenceStarted, Roles: others, Payload: domain.SequenceStartedPayload{Question: public, VisibleSteps: visible}})
	} else {
		endsAt := domain.UnixMillis(qs.Deadline)
		r.emit(domain.Event{Type: domain.EventQuestionStarted, Roles: host, Payload: domain.QuestionStartedPayload{Question: full, EndsAt: endsAt}})
		r.emit(domain.Event{Type: domain.EventQuestionStarted, Roles: others, Payload: domain.QuestionStartedPayload{Question: public, EndsAt: endsAt}})
	}
	if full.Type.BuzzerDriven() {
		for _, id := range r.playerIDs() {
			r.emit(domain.Event{Type: domain.EventBuzzerStatus, To: id, Payload: domain.BuzzerStatusPayload{Disabled: false}})
		}
	}
	return qs, nil
}

// SubmitAnswer records a player's answer on the active question.
func (r *Room) SubmitAnswer(playerID, value string) error {
	p, qs, err := r.activeForPlayer(playerID)
	if err != nil {
		return err
	}
	all, err := qs.SubmitAnswer(playerID, value, r.clock.Now(), r.playerIDs())
	if err != nil {
		return err
	}
	r.emit(domain.Event{Type: domain.EventPlayerAnswered, Payload: domain.PlayerAnsweredPayload{ID: p.ID, Name: p.Name}})
	if all {
		r.emit(domain.Event{Type: domain.EventAllAnswered, Payload: domain.EmptyPayload{}})
	}
	return nil
}

// Buzz runs playerID's attempt through the active question's arbiter.
func (r *Room) Buzz(playerID string) error {
	p, qs, err := r.activeForPlayer(playerID)
	if err != nil {
		return err
	}
	arb := qs.Buzzer()
	if arb == nil {
		return fmt.Errorf("%w: %s question has no buzzer", domain.ErrInvalidState, qs.Question.Type)
	}
	if qs.Revealed() {
		return fmt.Errorf("%w: answer already revealed", domain.ErrInvalidState)
	}
	if err := arb.Buzz(playerID); err != nil {
		return err
	}
	qs.stopped = true

	r.emit(domain.Event{Type: domain.EventBuzzed, Payload: domain.BuzzedPayload{ID: p.ID, Name: p.Name}})
	for _, id := range r.playerIDs() {
		r.emit(domain.Event{Type: domain.EventBuzzerStatus, To: id, Payload: domain.BuzzerStatusPayload{Disabled: true}})
	}
	return nil
}

// ResetBuzzer reopens the buzzer window under the given policy.
func (r *Room) ResetBuzzer(callerID string, opts ResetOptions) error {
	qs, err := r.activeForHost(callerID)
	if err != nil {
		return err
	}
	arb := qs.Buzzer()
	if arb == nil {
		return fmt.Errorf("%w: %s question has no buzzer", domain.ErrInvalidState, qs.Question.Type)
	}
	if qs.Revealed() {
		return fmt.Errorf("%w: answer already revealed", domain.ErrInvalidState)
	}
	arb.Reset(opts)

	r.emit(domain.Event{Type: domain.EventBuzzerReset, Payload: domain.EmptyPayload{}})
	ids := r.playerIDs()
	for _, id := range arb.Locks(ids) {
		r.emit(domain.Event{Type: domain.EventBuzzerLockedOut, Payload: domain.BuzzerLockedOutPayload{ID: id}})
	}
	for _, id := range ids {
		r.emit(domain.Event{Type: domain.EventBuzzerStatus, To: id, Payload: domain.BuzzerStatusPayload{Disabled: arb.LockedOut(id)}})
	}
	return nil
}

// RevealNextStep makes one more step of a sequence or link question visible.
func (r *Room) RevealNextStep(callerID string) (int, error) {
	qs, err := r.activeForHost(callerID)
	if err != nil {
		return 0, err
	}
	idx, err := qs.RevealNextStep()
	if err != nil {
		return 0, err
	}
	r.emit(domain.Event{Type: domain.EventSequenceStepRevealed, Payload: domain.SequenceStepRevealedPayload{
		Index:        idx,
		Step:         qs.Question.Steps[idx],
		VisibleSteps: qs.VisibleSteps(),
	}})
	return idx, nil
}

// RevealAnswer reveals the active question when a reveal condition holds
// and proposes the default scores.
func (r *Room) RevealAnswer(callerID string) (map[string]int, error) {
	qs, err := r.activeForHost(callerID)
	if err != nil {
		return nil, err
	}
	defaults, err := qs.RevealAnswer(r.clock.Now(), r.playerIDs(), r.settings.DefaultPoints)
	if err != nil {
		return nil, err
	}
	r.emitReveal(qs, defaults)
	return defaults, nil
}

// RevealSequenceAnswer is RevealAnswer for sequence and link questions; it
// is additionally legal once every step is visible.
func (r *Room) RevealSequenceAnswer(callerID string) (map[string]int, error) {
	qs, err := r.activeForHost(callerID)
	if err != nil {
		return nil, err
	}
	defaults, err := qs.RevealSequenceAnswer(r.clock.Now(), r.playerIDs(), r.settings.DefaultPoints)
	if err != nil {
		return nil, err
	}
	r.emitReveal(qs, defaults)
	return defaults, nil
}

func (r *Room) emitReveal(qs *QuestionSession, defaults map[string]int) {
	q := qs.Question
	if q.Type.Progressive() {
		r.emit(domain.Event{Type: domain.EventSequenceAnswerRevealed, Payload: domain.SequenceAnswerRevealedPayload{
			Title:                 q.Title,
			Answer:                q.Answer,
			Steps:                 append([]domain.Step(nil), q.Steps...),
			DefaultQuestionScores: defaults,
		}})
		return
	}
	r.emit(domain.Event{Type: domain.EventAnswerRevealed, Payload: domain.AnswerRevealedPayload{
		Answer:                q.Answer,
		DefaultQuestionScores: defaults,
	}})
}

// ConfirmScores commits the revealed question's deltas. Players missing
// from overrides keep their computed default. Overrides for ids that were
// not proposed are ignored. The returned flag reports that the round's
// queue is exhausted and the host may end the round.
func (r *Room) ConfirmScores(callerID string, overrides map[string]int) (map[string]int, bool, error) {
	qs, err := r.activeForHost(callerID)
	if err != nil {
		return nil, false, err
	}
	if !qs.Revealed() {
		return nil, false, fmt.Errorf("%w: answer not revealed yet", domain.ErrInvalidState)
	}

	applied := qs.Defaults()
	for id, delta := range overrides {
		if _, ok := applied[id]; ok {
			applied[id] = delta
		}
	}
	now := r.clock.Now()
	for _, id := range r.order {
		delta, ok := applied[id]
		if !ok {
			continue
		}
		r.round.ApplyScoreDelta(id, delta)
		if p := r.players[id]; p != nil {
			p.Score += delta
			p.LastUpdated = now
		}
	}
	r.round.clearActive()

	r.emitRoster(domain.EventScoreUpdate)
	return applied, r.round.Exhausted(), nil
}

// EndRound closes an exhausted round and publishes its leaderboard, built
// from the round ledger only.
func (r *Room) EndRound(callerID string) (domain.RoundLeaderboardPayload, error) {
	if err := r.requireHost(callerID); err != nil {
		return domain.RoundLeaderboardPayload{}, err
	}
	if r.phase != domain.PhaseRoundActive || r.round == nil {
		return domain.RoundLeaderboardPayload{}, fmt.Errorf("%w: no round in progress", domain.ErrInvalidState)
	}
	if !r.round.Exhausted() {
		return domain.RoundLeaderboardPayload{}, fmt.Errorf("%w: round still has questions", domain.ErrInvalidState)
	}

	ids := r.playerIDs()
	ledger := r.round.Ledger()
	scores := make(map[string]int, len(ids))
	for _, id := range ids {
		scores[id] = ledger[id]
	}
	board := domain.RoundLeaderboardPayload{
		Round:       r.round.Number,
		Players:     r.playerViews(),
		RoundScores: scores,
		Ranking:     rankLedger(scores, r.names(), ids),
	}
	r.lastRound = &board
	r.round = nil
	r.phase = domain.PhaseBetweenRounds

	r.emit(domain.Event{Type: domain.EventRoundEnded, Payload: domain.EmptyPayload{}})
	r.emit(domain.Event{Type: domain.EventRoundLeaderboard, Payload: board})
	return board, nil
}

// ShowFullLeaderboard broadcasts cumulative scores without ending the show.
func (r *Room) ShowFullLeaderboard(callerID string) (domain.LeaderboardPayload, error) {
	if r.phase == domain.PhaseFinished && r.final != nil {
		if _, ok := r.players[callerID]; !ok {
			return domain.LeaderboardPayload{}, domain.ErrParticipantNotFound
		}
		r.emit(domain.Event{Type: domain.EventFullLeaderboard, Payload: *r.final})
		return *r.final, nil
	}
	if err := r.requireHost(callerID); err != nil {
		return domain.LeaderboardPayload{}, err
	}
	if r.round != nil && r.round.Active() != nil {
		return domain.LeaderboardPayload{}, fmt.Errorf("%w: a question is active", domain.ErrInvalidState)
	}
	board := r.cumulative()
	r.emit(domain.Event{Type: domain.EventFullLeaderboard, Payload: board})
	return board, nil
}

// EndShow finishes the show with the cumulative leaderboard. Repeated calls
// return the same result and queue nothing. An unconfirmed active question
// is discarded.
func (r *Room) EndShow(callerID string) (domain.LeaderboardPayload, error) {
	if r.phase == domain.PhaseFinished && r.final != nil {
		return *r.final, nil
	}
	if err := r.requireHost(callerID); err != nil {
		return domain.LeaderboardPayload{}, err
	}
	board := r.cumulative()
	r.final = &board
	r.round = nil
	r.staged = nil
	r.phase = domain.PhaseFinished
	r.emit(domain.Event{Type: domain.EventFinalScoreboard, Payload: board})
	return board, nil
}

// Tick queues an authoritative clock correction for a running timed
// question. It reports false once there is nothing left to tick: no timed
// question, a frozen clock, or the deadline reached (the zero tick is
// still emitted).
func (r *Room) Tick() (int, bool) {
	if r.round == nil || r.round.Active() == nil {
		return 0, false
	}
	qs := r.round.Active()
	if qs.Deadline.IsZero() || qs.Stopped() {
		return 0, false
	}
	remaining := qs.Remaining(r.clock.Now())
	r.emit(domain.Event{Type: domain.EventTick, Payload: domain.TickPayload{Remaining: remaining}})
	if remaining == 0 {
		qs.stopped = true
		return 0, false
	}
	return remaining, true
}

// Snapshot is the full state as seen by the observer id. Only the host sees
// the answer of an unrevealed question.
func (r *Room) Snapshot(id string) domain.Snapshot {
	role := domain.RolePlayer
	if p, ok := r.players[id]; ok {
		role = p.Role
	}
	snap := domain.Snapshot{
		Room:      r.Code,
		Phase:     r.phase,
		Players:   r.playerViews(),
		Staged:    len(r.staged),
		LastRound: r.lastRound,
		Final:     r.final,
	}
	if r.round == nil {
		return snap
	}
	view := r.round.View()
	snap.Round = &view
	snap.RoundScores = r.round.Ledger()

	qs := r.round.Active()
	if qs == nil {
		return snap
	}
	q := qs.Question
	if role != domain.RoleHost && !qs.Revealed() {
		q = q.Redacted()
	}
	snap.Question = &q
	snap.EndsAt = domain.UnixMillis(qs.Deadline)
	snap.Frozen = qs.Stopped()
	snap.Remaining = qs.Remaining(r.clock.Now())
	if qs.AllAnswered() {
		snap.Remaining = 0
	}
	snap.VisibleSteps = qs.VisibleSteps()
	snap.AllAnswered = qs.AllAnswered()
	snap.Revealed = qs.Revealed()
	if qs.Revealed() || role == domain.RoleHost {
		snap.Answer = qs.Question.Answer
		snap.Title = qs.Question.Title
	}
	if qs.Revealed() {
		snap.DefaultScores = qs.Defaults()
	}
	if arb := qs.Buzzer(); arb != nil {
		snap.BuzzerOpen = arb.Open()
		if w := arb.Winner(); w != "" {
			snap.Buzzed = &domain.BuzzedPayload{ID: w, Name: r.names()[w]}
		}
		snap.LockedOut = arb.Locks(r.playerIDs())
	}
	return snap
}

// PlayerViews is the roster of scoring players in join order.
func (r *Room) PlayerViews() []domain.PlayerView { return r.playerViews() }

func (r *Room) playerViews() []domain.PlayerView {
	var qs *QuestionSession
	if r.round != nil {
		qs = r.round.Active()
	}
	out := make([]domain.PlayerView, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		if p.Role != domain.RolePlayer {
			continue
		}
		v := domain.PlayerView{ID: p.ID, Name: p.Name, Score: p.Score, Connected: p.Connected}
		if qs != nil {
			v.Submitted = qs.Submitted(id)
			if arb := qs.Buzzer(); arb != nil {
				v.LockedOut = arb.LockedOut(id)
			}
		}
		out = append(out, v)
	}
	return out
}

func (r *Room) emitRoster(typ domain.EventType) {
	r.emit(domain.Event{Type: typ, Payload: r.playerViews()})
}

func (r *Room) cumulative() domain.LeaderboardPayload {
	ids := r.playerIDs()
	scores := make(map[string]int, len(ids))
	for _, id := range ids {
		scores[id] = r.players[id].Score
	}
	return domain.LeaderboardPayload{
		Players: r.playerViews(),
		Ranking: rankLedger(scores, r.names(), ids),
	}
}

func (r *Room) playerIDs() []string {
	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.players[id].Role == domain.RolePlayer {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Room) names() map[string]string {
	out := make(map[string]string, len(r.players))
	for id, p := range r.players {
		out[id] = p.Name
	}
	return out
}

func (r *Room) requireHost(callerID string) error {
	if r.phase == domain.PhaseFinished {
		return domain.ErrRoomClosed
	}
	p, ok := r.players[callerID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.Role != domain.RoleHost {
		return fmt.Errorf("%w: host only", domain.ErrForbidden)
	}
	return nil
}

func (r *Room) activeForHost(callerID string) (*QuestionSession, error) {
	if err := r.requireHost(callerID); err != nil {
		return nil, err
	}
	if r.round == nil || r.round.Active() == nil {
		return nil, fmt.Errorf("%w: no active question", domain.ErrInvalidState)
	}
	return r.round.Active(), nil
}

func (r *Room) activeForPlayer(playerID string) (*domain.Player, *QuestionSession, error) {
	if r.phase == domain.PhaseFinished {
		return nil, nil, domain.ErrRoomClosed
	}
	p, ok := r.players[playerID]
	if !ok {
		return nil, nil, domain.ErrParticipantNotFound
	}
	if p.Role != domain.RolePlayer {
		return nil, nil, fmt.Errorf("%w: players only", domain.ErrForbidden)
	}
	if r.round == nil || r.round.Active() == nil {
		return nil, nil, fmt.Errorf("%w: no active question", domain.ErrInvalidState)
	}
	return p, r.round.Active(), nil
}
