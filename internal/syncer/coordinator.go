// Package syncer keeps one consumer's view of a month consistent with the
// server despite overlapping fetches, lagging reads and transient failures.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"timeoff-scheduler-backend/internal/apperr"
	"timeoff-scheduler-backend/internal/capacity"
	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/parse"
	"timeoff-scheduler-backend/internal/timeoff"
)

// ErrSuperseded is returned by a fetch whose result was discarded because a
// newer fetch was issued for the same consumer.
var ErrSuperseded = errors.New("fetch superseded by a newer one")

// State is the coordinator's progress through a fetch.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateStale    State = "stale"
	StateRetrying State = "retrying"
	StateSettled  State = "settled"
	StateFailed   State = "failed"
)

// mismatchError marks a response for a different month or date than asked.
type mismatchError struct {
	want string
	got  string
}

func (e *mismatchError) Error() string {
	return fmt.Sprintf("asked for %s, got data for %s", e.want, e.got)
}

func retryable(err error) bool {
	var mm *mismatchError
	return errors.As(err, &mm) || apperr.IsRetryable(err)
}

// View is the consumer's current picture.
type View struct {
	Month    string                     `json:"month"`
	Role     model.Role                 `json:"role"`
	Days     []capacity.DayAvailability `json:"days"`
	Selected string                     `json:"selected,omitempty"`
	Detail   *timeoff.DateDetail        `json:"detail,omitempty"`
	Token    uint64                     `json:"-"`
}

// lane is one kind of fetch that supersedes its own predecessors. err holds
// the lane's last terminal failure until the lane next succeeds.
type lane struct {
	token  uint64
	cancel context.CancelFunc
	err    error
}

func (l *lane) release() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Coordinator serialises one consumer's fetches. Every fetch gets a fresh
// token; a result is applied only while its token is still the newest for
// its lane.
type Coordinator struct {
	fetcher Fetcher
	policy  RetryPolicy
	clock   Clock
	settle  time.Duration
	log     *zap.Logger
	onState func(State)

	mu        sync.Mutex
	seq       uint64
	monthLane lane
	dateLane  lane
	state     State
	lastErr   error
	month     parse.Month
	role      model.Role
	view      View
	listeners []chan View

	bg     context.Context
	stopBg context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithClock overrides RealClock.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithSettleDelay sets the wait before the second refresh after a mutation.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.settle = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithStateHook is called on every state change, while the lock is held.
func WithStateHook(fn func(State)) Option {
	return func(c *Coordinator) { c.onState = fn }
}

// NewCoordinator creates a Coordinator reading through fetcher.
func NewCoordinator(fetcher Fetcher, opts ...Option) *Coordinator {
	bg, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		fetcher: fetcher,
		policy:  DefaultRetryPolicy(),
		clock:   RealClock(),
		settle:  1500 * time.Millisecond,
		log:     zap.NewNop(),
		state:   StateIdle,
		bg:      bg,
		stopBg:  stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close supersedes in-flight fetches and waits for pending settle refreshes.
func (c *Coordinator) Close() {
	c.stopBg()
	c.mu.Lock()
	c.supersede(&c.monthLane)
	c.supersede(&c.dateLane)
	for _, l := range c.listeners {
		close(l)
	}
	c.listeners = nil
	c.mu.Unlock()
	c.wg.Wait()
}

// Subscribe returns a channel receiving every applied view. Slow readers miss
// intermediate views rather than blocking the coordinator.
func (c *Coordinator) Subscribe() <-chan View {
	ch := make(chan View, 8)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	c.mu.Unlock()
	return ch
}

// View returns a snapshot of the current view.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure of the month or the date lane, nil once both have
// settled since.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Coordinator) snapshot() View {
	v := c.view
	v.Days = append([]capacity.DayAvailability(nil), c.view.Days...)
	if c.view.Detail != nil {
		d := *c.view.Detail
		d.Requests = append([]timeoff.RequestView(nil), c.view.Detail.Requests...)
		v.Detail = &d
	}
	return v
}

func (c *Coordinator) setState(s State) {
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *Coordinator) publish() {
	v := c.snapshot()
	for _, l := range c.listeners {
		select {
		case l <- v:
		default:
		}
	}
}

// supersede cancels whatever l has in flight and invalidates its token, so the
// cancelled fetch reports ErrSuperseded. Must hold c.mu.
func (c *Coordinator) supersede(l *lane) {
	l.release()
	c.seq++
	l.token = c.seq
}

// settled records a successful fetch on l and derives the overall state from
// both lanes. Must hold c.mu.
func (c *Coordinator) settled(l *lane) {
	l.err = nil
	switch {
	case c.monthLane.err != nil:
		c.lastErr = c.monthLane.err
		c.setState(StateFailed)
	case c.dateLane.err != nil:
		c.lastErr = c.dateLane.err
		c.setState(StateFailed)
	case c.monthLane.cancel != nil || c.dateLane.cancel != nil:
		c.lastErr = nil
	default:
		c.lastErr = nil
		c.setState(StateSettled)
	}
}

// begin cancels whatever l has in flight and issues a new token for it.
func (c *Coordinator) begin(ctx context.Context, l *lane) (context.Context, uint64) {
	l.release()
	c.seq++
	fctx, cancel := context.WithCancel(ctx)
	l.token = c.seq
	l.cancel = cancel
	c.setState(StateFetching)
	return fctx, c.seq
}

// Navigate switches to a month and role filter and fetches it. A selected
// date outside the new month is cleared.
func (c *Coordinator) Navigate(ctx context.Context, year int, month time.Month, role model.Role) (View, error) {
	m, err := parse.NewMonth(year, month)
	if err != nil {
		return View{}, apperr.NewValidation("month", err.Error())
	}
	if role == "" {
		role = model.RoleAll
	}
	if !role.Valid() {
		return View{}, apperr.NewValidation("role", "must be one of: caregiver, office, all")
	}

	c.mu.Lock()
	c.month, c.role = m, role
	if c.view.Selected != "" && !m.Contains(c.view.Selected) {
		c.clearSelectionLocked()
	}
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Refresh refetches the current month, and the selected date if any. The
// date is skipped when another date fetch was issued in the meantime.
func (c *Coordinator) Refresh(ctx context.Context) (View, error) {
	c.mu.Lock()
	selected, dateToken := c.view.Selected, c.dateLane.token
	c.mu.Unlock()

	v, err := c.fetchMonth(ctx)
	if err != nil || selected == "" {
		return v, err
	}
	return c.fetchDate(ctx, selected, func() bool {
		return c.view.Selected == selected && c.dateLane.token == dateToken
	})
}

// SelectDate fetches one date's detail. Selecting the date that is already
// selected deselects it. The date must lie in the current month.
func (c *Coordinator) SelectDate(ctx context.Context, date string) (View, error) {
	if !parse.IsDate(date) {
		return View{}, apperr.NewValidation("date", "must be a date in YYYY-MM-DD format")
	}

	c.mu.Lock()
	if c.month == (parse.Month{}) {
		c.mu.Unlock()
		return View{}, apperr.NewValidation("month", "no month selected")
	}
	if !c.month.Contains(date) {
		m := c.month
		c.mu.Unlock()
		return View{}, apperr.NewValidation("date", fmt.Sprintf("%s is not in %s, navigate there first", date, m))
	}
	if c.view.Selected == date {
		c.mu.Unlock()
		return c.ClearSelection(ctx)
	}
	c.view.Selected = date
	c.view.Detail = nil
	c.mu.Unlock()

	return c.fetchDate(ctx, date, func() bool { return c.view.Selected == date })
}

// ClearSelection drops the selected date, supersedes any date fetch in flight
// and restores the month-wide view.
func (c *Coordinator) ClearSelection(ctx context.Context) (View, error) {
	c.mu.Lock()
	c.clearSelectionLocked()
	c.mu.Unlock()
	return c.fetchMonth(ctx)
}

func (c *Coordinator) clearSelectionLocked() {
	c.supersede(&c.dateLane)
	c.dateLane.err = nil
	c.view.Selected = ""
	c.view.Detail = nil
}

// AfterMutation refreshes immediately and once more after the settle delay,
// to pick up writes the backing store had not yet made visible.
func (c *Coordinator) AfterMutation(ctx context.Context) (View, error) {
	v, err := c.Refresh(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if c.clock.Sleep(c.bg, c.settle) != nil {
			return
		}
		if _, err := c.Refresh(c.bg); err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, context.Canceled) {
			c.log.Warn("settle refresh failed", zap.Error(err))
		}
	}()
	return v, err
}

// Mutate runs fn and then reconciles with AfterMutation. A failed mutation is
// returned without refreshing.
func (c *Coordinator) Mutate(ctx context.Context, fn func(ctx context.Context) error) (View, error) {
	if err := fn(ctx); err != nil {
		return c.View(), err
	}
	return c.AfterMutation(ctx)
}

func (c *Coordinator) fetchMonth(ctx context.Context) (View, error) {
	c.mu.Lock()
	if c.month == (parse.Month{}) {
		c.mu.Unlock()
		return View{}, apperr.NewValidation("month", "no month selected")
	}
	m, role := c.month, c.role
	fctx, token := c.begin(ctx, &c.monthLane)
	c.mu.Unlock()

	var days []capacity.DayAvailability
	attempts, err := c.policy.Do(fctx, c.clock, retryable, func(ctx context.Context, attempt int) error {
		if attempt > 1 && !c.retrying(&c.monthLane, token) {
			return ErrSuperseded
		}
		view, err := c.fetcher.FetchMonth(ctx, m.Year, m.Month, role)
		if err != nil {
			return c.failed(&c.monthLane, token, m.String(), attempt, err)
		}
		days, err = inMonth(view, m)
		if err != nil {
			return c.failed(&c.monthLane, token, m.String(), attempt, err)
		}
		return nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.monthLane.token != token {
		return c.snapshot(), ErrSuperseded
	}
	c.monthLane.release()
	if err != nil {
		return c.snapshot(), c.fail(&c.monthLane, m.String(), attempts, err)
	}

	c.view.Month = m.String()
	c.view.Role = role
	c.view.Days = days
	c.view.Token = token
	c.settled(&c.monthLane)
	c.publish()
	return c.snapshot(), nil
}

// fetchDate fetches date's detail. current is checked under the lock before
// the fetch is issued; when it no longer holds, a newer selection has taken
// over and nothing is fetched.
func (c *Coordinator) fetchDate(ctx context.Context, date string, current func() bool) (View, error) {
	c.mu.Lock()
	if !current() {
		defer c.mu.Unlock()
		return c.snapshot(), ErrSuperseded
	}
	role := c.role
	if role == "" {
		role = model.RoleAll
	}
	fctx, token := c.begin(ctx, &c.dateLane)
	c.mu.Unlock()

	var detail *timeoff.DateDetail
	attempts, err := c.policy.Do(fctx, c.clock, retryable, func(ctx context.Context, attempt int) error {
		if attempt > 1 && !c.retrying(&c.dateLane, token) {
			return ErrSuperseded
		}
		d, err := c.fetcher.FetchDate(ctx, date, role)
		if err != nil {
			return c.failed(&c.dateLane, token, date, attempt, err)
		}
		detail, err = onDate(d, date)
		if err != nil {
			return c.failed(&c.dateLane, token, date, attempt, err)
		}
		return nil
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dateLane.token != token || c.view.Selected != date {
		return c.snapshot(), ErrSuperseded
	}
	c.dateLane.release()
	if err != nil {
		return c.snapshot(), c.fail(&c.dateLane, date, attempts, err)
	}

	c.view.Detail = detail
	c.view.Token = token
	c.settled(&c.dateLane)
	c.publish()
	return c.snapshot(), nil
}

// failed records a retryable failure of the current attempt.
func (c *Coordinator) failed(l *lane, token uint64, target string, attempt int, err error) error {
	if !retryable(err) {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if l.token != token {
		return ErrSuperseded
	}
	c.setState(StateStale)
	c.log.Debug("stale or failed fetch",
		zap.String("target", target),
		zap.Int("attempt", attempt),
		zap.Error(err))
	return err
}

// retrying reports whether token is still current and moves to Retrying.
func (c *Coordinator) retrying(l *lane, token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l.token != token {
		return false
	}
	c.setState(StateRetrying)
	return true
}

// fail turns a terminal error on l into the caller facing one. Must hold c.mu.
func (c *Coordinator) fail(l *lane, target string, attempts int, err error) error {
	if errors.Is(err, ErrSuperseded) {
		return err
	}
	if retryable(err) {
		err = &apperr.StaleDataError{Target: target, Attempts: attempts, Err: err}
	}
	l.err = err
	c.lastErr = err
	c.setState(StateFailed)
	c.log.Warn("fetch failed", zap.String("target", target), zap.Int("attempts", attempts), zap.Error(err))
	return err
}

// inMonth keeps the days that belong to m. A response with nothing in m is
// stale; one that mixes months is trimmed and accepted.
func inMonth(view *timeoff.MonthView, m parse.Month) ([]capacity.DayAvailability, error) {
	if view == nil {
		return nil, &mismatchError{want: m.String(), got: "nothing"}
	}
	if len(view.Days) == 0 {
		if view.Month != "" && view.Month != m.String() {
			return nil, &mismatchError{want: m.String(), got: view.Month}
		}
		return []capacity.DayAvailability{}, nil
	}

	days := make([]capacity.DayAvailability, 0, len(view.Days))
	for _, d := range view.Days {
		if m.Contains(d.Date) {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		got := view.Month
		if mo, ok := parse.MonthOf(view.Days[0].Date); ok {
			got = mo.String()
		}
		return nil, &mismatchError{want: m.String(), got: got}
	}
	return days, nil
}

// onDate checks a detail is for date and drops requests for other dates.
func onDate(d *timeoff.DateDetail, date string) (*timeoff.DateDetail, error) {
	if d == nil {
		return nil, &mismatchError{want: date, got: "nothing"}
	}
	if d.Date != date {
		return nil, &mismatchError{want: date, got: d.Date}
	}
	out := *d
	out.Requests = make([]timeoff.RequestView, 0, len(d.Requests))
	for _, r := range d.Requests {
		if r.Date == date {
			out.Requests = append(out.Requests, r)
		}
	}
	return &out, nil
}
