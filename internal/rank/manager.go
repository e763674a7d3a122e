package rank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

const (
	// MaxTopPeersLimit caps how many peers a single query may return.
	MaxTopPeersLimit = 100

	// requestLimit is the fixed per-category page size of the combined fetch.
	requestLimit = 100

	defaultServerSyncInterval = 24 * time.Hour
	defaultLocalSyncDebounce  = 5 * time.Second

	fetchRetryInitial = 5 * time.Second
	fetchRetryMax     = 5 * time.Minute

	keyPrefix = "top_peers"
	markerKey = "top_peers_ts"
)

// ErrNotSupported is returned by GetTop when the feature is inactive.
var ErrNotSupported = errors.New("top peer ranking not supported without the local store")

type syncState int

const (
	syncNone syncState = iota
	syncPending
	syncOk
)

func (s syncState) String() string {
	switch s {
	case syncNone:
		return "none"
	case syncPending:
		return "pending"
	case syncOk:
		return "ok"
	default:
		return fmt.Sprintf("syncState(%d)", int(s))
	}
}

// Deps are the collaborator handles the manager operates through.
type Deps struct {
	KV        KV
	Transport Transport
	Directory Directory
	Resolver  Resolver
	Decay     DecayConfig
}

// Options tune the manager. Zero values pick defaults.
type Options struct {
	// Enabled gates the whole feature. When false the manager erases its
	// persisted state on startup and permanently refuses queries.
	Enabled bool

	ServerSyncInterval time.Duration
	LocalSyncDebounce  time.Duration

	Clock  Clock
	Logger *slog.Logger
}

type queryResult struct {
	peers []Peer
	err   error
}

type pendingQuery struct {
	category Category
	limit    int
	result   chan queryResult
}

// Status is a snapshot of the manager's synchronization state.
type Status struct {
	Active         bool      `json:"active"`
	ServerSync     string    `json:"server_sync"`
	LocalSync      string    `json:"local_sync"`
	LastServerSync time.Time `json:"last_server_sync,omitzero"`
	FirstSyncSeen  bool      `json:"first_sync_seen"`
}

// Manager owns the per-category rating lists and keeps them consistent
// across live updates, the durable store, and the remote sync service.
//
// All state lives on a single goroutine (Run); exposed operations and async
// completions re-enter it as closures on the ops channel, so no mutation
// ever runs concurrently with another.
type Manager struct {
	kv        KV
	transport Transport
	directory Directory
	resolver  Resolver
	decay     DecayConfig
	clock     Clock
	logger    *slog.Logger

	enabled            bool
	serverSyncInterval time.Duration
	localSyncDebounce  time.Duration

	ops  chan func()
	done chan struct{}

	// Owned by the Run goroutine after startup.
	runCtx              context.Context
	active              bool
	byCategory          [numCategories]topList
	pending             []pendingQuery
	serverSync          syncState
	localSync           syncState
	lastServerSync      time.Time
	firstUnsyncedChange time.Time
	firstSyncSeen       bool
	fetchBackoff        time.Duration
	nextFetchAttempt    time.Time

	timer  *time.Timer
	timerC <-chan time.Time
}

// NewManager builds a manager; call Run to start it.
func NewManager(deps Deps, opts Options) *Manager {
	if opts.ServerSyncInterval <= 0 {
		opts.ServerSyncInterval = defaultServerSyncInterval
	}
	if opts.LocalSyncDebounce <= 0 {
		opts.LocalSyncDebounce = defaultLocalSyncDebounce
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if deps.Decay == nil {
		deps.Decay = StaticDecay(DefaultDecayConstant)
	}
	return &Manager{
		kv:                 deps.KV,
		transport:          deps.Transport,
		directory:          deps.Directory,
		resolver:           deps.Resolver,
		decay:              deps.Decay,
		clock:              opts.Clock,
		logger:             opts.Logger,
		enabled:            opts.Enabled,
		serverSyncInterval: opts.ServerSyncInterval,
		localSyncDebounce:  opts.LocalSyncDebounce,
		ops:                make(chan func(), 128),
		done:               make(chan struct{}),
		runCtx:             context.Background(),
		fetchBackoff:       fetchRetryInitial,
	}
}

// Run loads persisted state and processes operations until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	m.runCtx = ctx
	m.startUp()
	for {
		select {
		case <-ctx.Done():
			m.stopTimer()
			return nil
		case op := <-m.ops:
			op()
		case <-m.timerC:
			m.timerC = nil
			m.tick()
		}
	}
}

// RecordUse bumps peer's rating in category for an event at eventTime.
// Fire and forget; a no-op while inactive.
func (m *Manager) RecordUse(category Category, peer Peer, eventTime time.Time) {
	m.do(func() {
		if !m.active || !category.valid() {
			return
		}
		l := &m.byCategory[category]
		delta := l.recordUse(peer, unixSeconds(eventTime), m.decay.DecayConstant())
		m.logger.Debug("updated rating", "category", category.Name(), "peer", peer.String(), "delta", delta)
		if m.firstUnsyncedChange.IsZero() {
			m.firstUnsyncedChange = m.clock.Now()
		}
		m.tick()
	})
}

// Remove drops peer from category's list. When resetRemote is set, a fire
// and forget reset request is sent to the sync service first. Removing an
// absent peer has no side effects.
func (m *Manager) Remove(category Category, peer Peer, resetRemote bool) {
	m.do(func() {
		if !m.active || !category.valid() {
			return
		}
		m.logger.Debug("removing rating", "category", category.Name(), "peer", peer.String())
		if resetRemote {
			go func(ctx context.Context) {
				if err := m.transport.ResetRating(ctx, category.Name(), peer); err != nil {
					m.logger.Warn("remote rating reset failed", "peer", peer.String(), "error", err)
				}
			}(m.runCtx)
		}
		l := &m.byCategory[category]
		if !l.remove(peer) {
			return
		}
		if m.firstUnsyncedChange.IsZero() {
			m.firstUnsyncedChange = m.clock.Now()
		}
		m.tick()
	})
}

// GetTop answers with up to limit peers from category in rank order, with
// permanently removed peers and the caller's own identity filtered out.
// Fails immediately with ErrNotSupported while inactive.
func (m *Manager) GetTop(ctx context.Context, category Category, limit int) ([]Peer, error) {
	if !category.valid() {
		return nil, fmt.Errorf("invalid category %d", int(category))
	}
	result := make(chan queryResult, 1)
	op := func() {
		if !m.active {
			result <- queryResult{err: ErrNotSupported}
			return
		}
		m.pending = append(m.pending, pendingQuery{category: category, limit: limit, result: result})
		m.tick()
	}
	select {
	case m.ops <- op:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-result:
		return r.peers, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnFirstSync signals that the remote service has been reached for the first
// time; the manager will not attempt a fetch before this.
func (m *Manager) OnFirstSync() {
	m.do(func() {
		m.firstSyncSeen = true
		m.tick()
	})
}

// OnResult applies the outcome of a combined fetch and reschedules.
func (m *Manager) OnResult(resp TopPeersResponse, err error) {
	m.do(func() {
		if !m.active {
			return
		}
		m.applyFetchResult(resp, err)
		m.tick()
	})
}

// Status reports the current synchronization state.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	result := make(chan Status, 1)
	op := func() {
		result <- Status{
			Active:         m.active,
			ServerSync:     m.serverSync.String(),
			LocalSync:      m.localSync.String(),
			LastServerSync: m.lastServerSync,
			FirstSyncSeen:  m.firstSyncSeen,
		}
	}
	select {
	case m.ops <- op:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case s := <-result:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// do hands an operation to the Run goroutine. Must not be called from the
// Run goroutine itself. Operations queued before Run starts are held in the
// ops buffer; once Run has returned they are dropped.
func (m *Manager) do(op func()) {
	select {
	case m.ops <- op:
	case <-m.done:
	}
}

func (m *Manager) startUp() {
	if !m.enabled {
		m.deactivate("feature disabled")
		return
	}

	marker, ok, err := m.kv.GetValue(markerKey)
	if err != nil {
		m.deactivate(fmt.Sprintf("local store unavailable: %v", err))
		return
	}
	m.active = true

	now := m.clock.Now()
	if ok {
		secs, parseErr := strconv.ParseInt(string(marker), 10, 64)
		if parseErr != nil {
			m.logger.Error("corrupt last-sync marker, ignoring", "value", string(marker), "error", parseErr)
		} else {
			m.lastServerSync = time.Unix(secs, 0)
			if now.Sub(m.lastServerSync) < m.serverSyncInterval {
				m.serverSync = syncOk
			}
		}
	}

	for _, category := range Categories() {
		data, ok, err := m.kv.GetValue(categoryKey(category))
		if err != nil {
			m.deactivate(fmt.Sprintf("local store unavailable: %v", err))
			return
		}
		if !ok {
			continue
		}
		l, err := unmarshalList(data)
		if err != nil {
			// Degrade to an empty list rather than killing the feature.
			m.logger.Error("corrupt category state, starting empty", "category", category.Name(), "error", err)
			continue
		}
		m.byCategory[category] = l
	}

	m.normalizeAll(now)
	// Freshly loaded state counts as flushed.
	m.localSync = syncOk
	m.firstUnsyncedChange = time.Time{}

	m.logger.Info("top peer ranking active",
		"server_sync", m.serverSync.String(), "last_server_sync", m.lastServerSync)
	m.tick()
}

// deactivate permanently shuts the feature down for this process: queued and
// future queries fail, no timer is armed again, persisted state is erased.
func (m *Manager) deactivate(reason string) {
	m.logger.Warn("top peer ranking inactive", "reason", reason)
	m.active = false
	for _, q := range m.pending {
		q.result <- queryResult{err: ErrNotSupported}
	}
	m.pending = nil
	m.stopTimer()
	if m.kv != nil {
		if err := m.kv.EraseByPrefix(keyPrefix); err != nil {
			m.logger.Warn("erasing persisted ranking state failed", "error", err)
		}
	}
}

// tick is the scheduling step: drain queries, advance both sync axes, and
// re-arm the single wake-up timer. Runs on the Run goroutine only.
func (m *Manager) tick() {
	if !m.active {
		return
	}

	m.drainQueries()

	now := m.clock.Now()
	var wake time.Time

	// Server axis.
	if m.serverSync == syncOk && !now.Before(m.lastServerSync.Add(m.serverSyncInterval)) {
		m.serverSync = syncNone
	}
	switch {
	case m.serverSync == syncOk:
		wake = relax(wake, m.lastServerSync.Add(m.serverSyncInterval))
	case m.serverSync == syncNone && m.firstSyncSeen:
		if now.Before(m.nextFetchAttempt) {
			wake = relax(wake, m.nextFetchAttempt)
		} else {
			m.serverSync = syncPending
			m.doGetTopPeers()
		}
	}

	// Local axis. The flush is gated on the server axis being Ok so state
	// about to be superseded by an in-flight fetch is not persisted.
	if m.localSync == syncOk && !m.firstUnsyncedChange.IsZero() &&
		!now.Before(m.firstUnsyncedChange.Add(m.localSyncDebounce)) {
		m.localSync = syncNone
	}
	switch {
	case m.localSync == syncOk:
		if !m.firstUnsyncedChange.IsZero() {
			wake = relax(wake, m.firstUnsyncedChange.Add(m.localSyncDebounce))
		}
	case m.localSync == syncNone && m.serverSync == syncOk:
		m.saveDirty()
	}

	if wake.IsZero() {
		m.stopTimer()
	} else {
		m.armTimer(now, wake)
	}
}

func (m *Manager) drainQueries() {
	if len(m.pending) == 0 {
		return
	}
	queries := m.pending
	m.pending = nil
	for _, q := range queries {
		m.startQuery(q)
	}
}

// startQuery snapshots the ranked candidates, ensures their metadata is
// loaded, then filters and answers on re-entry.
func (m *Manager) startQuery(q pendingQuery) {
	l := &m.byCategory[q.category]
	limit := q.limit
	if limit < 0 {
		limit = 0
	}
	if limit > MaxTopPeersLimit {
		limit = MaxTopPeersLimit
	}
	candidates := l.peers(limit)

	go func(ctx context.Context) {
		if err := m.resolver.EnsureLoaded(ctx, candidates); err != nil {
			m.logger.Warn("peer metadata preload failed", "error", err)
		}
		m.do(func() { m.finishQuery(q, candidates) })
	}(m.runCtx)
}

func (m *Manager) finishQuery(q pendingQuery, candidates []Peer) {
	self := m.directory.SelfID()
	result := make([]Peer, 0, len(candidates))
	for _, peer := range candidates {
		if peer == self {
			m.logger.Debug("skipping self", "peer", peer.String())
			continue
		}
		if m.directory.IsPermanentlyRemoved(peer) {
			m.logger.Debug("skipping removed peer", "peer", peer.String())
			continue
		}
		result = append(result, peer)
		if len(result) == q.limit {
			break
		}
	}
	q.result <- queryResult{peers: result}
}

// doGetTopPeers issues the combined fetch covering every category.
func (m *Manager) doGetTopPeers() {
	var ids []int64
	for i := range m.byCategory {
		for _, e := range m.byCategory[i].entries {
			ids = append(ids, e.Peer.ID)
		}
	}
	req := TopPeersRequest{
		Categories: categoryNames[:],
		Offset:     0,
		Limit:      requestLimit,
		Hash:       peersHash(ids),
	}
	m.logger.Info("requesting top peers", "known_peers", len(ids), "hash", req.Hash)

	go func(ctx context.Context) {
		resp, err := m.transport.GetTopPeers(ctx, req)
		m.OnResult(resp, err)
	}(m.runCtx)
}

func (m *Manager) applyFetchResult(resp TopPeersResponse, err error) {
	if err == nil && !resp.NotModified {
		err = validateResponse(resp)
	}
	if err != nil {
		m.logger.Error("top peer fetch failed", "error", err, "retry_in", m.fetchBackoff)
		m.serverSync = syncNone
		m.nextFetchAttempt = m.clock.Now().Add(m.fetchBackoff)
		m.fetchBackoff *= 2
		if m.fetchBackoff > fetchRetryMax {
			m.fetchBackoff = fetchRetryMax
		}
		return
	}

	if !resp.NotModified {
		if mergeErr := m.directory.Merge(resp.Peers); mergeErr != nil {
			m.logger.Warn("merging peer metadata failed", "error", mergeErr)
		}
		for _, cp := range resp.Categories {
			category, _ := ParseCategory(cp.Category)
			m.byCategory[category].replace(cp.Peers)
		}
		m.logger.Info("replaced top peer lists", "categories", len(resp.Categories))
	} else {
		m.logger.Debug("top peers unchanged")
	}

	now := m.clock.Now()
	m.normalizeAll(now)
	m.lastServerSync = now
	m.persistSyncMarker(now)
	m.serverSync = syncOk
	m.fetchBackoff = fetchRetryInitial
	m.nextFetchAttempt = time.Time{}
}

func validateResponse(resp TopPeersResponse) error {
	for _, cp := range resp.Categories {
		if _, err := ParseCategory(cp.Category); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}
	}
	return nil
}

// normalizeAll rebases every category to now and invalidates the local sync
// axis because all lists changed.
func (m *Manager) normalizeAll(now time.Time) {
	nowSecs := unixSeconds(now)
	decayConstant := m.decay.DecayConstant()
	for i := range m.byCategory {
		m.byCategory[i].normalize(nowSecs, decayConstant)
	}
	m.localSync = syncNone
}

func (m *Manager) persistSyncMarker(now time.Time) {
	value := strconv.FormatInt(now.Unix(), 10)
	if err := m.kv.SetValue(markerKey, []byte(value)); err != nil {
		m.logger.Warn("persisting sync marker failed", "error", err)
	}
}

// saveDirty flushes every dirty category to the durable store.
func (m *Manager) saveDirty() {
	m.logger.Debug("saving top peer lists")
	failed := false
	for _, category := range Categories() {
		l := &m.byCategory[category]
		if !l.dirty {
			continue
		}
		data, err := marshalList(l)
		if err == nil {
			err = m.kv.SetValue(categoryKey(category), data)
		}
		if err != nil {
			m.logger.Error("saving category failed", "category", category.Name(), "error", err)
			failed = true
			continue
		}
		l.dirty = false
	}
	m.localSync = syncOk
	m.firstUnsyncedChange = time.Time{}
	if failed {
		// Leave the failed categories dirty and let the debounce retry.
		m.firstUnsyncedChange = m.clock.Now()
	}
}

func (m *Manager) armTimer(now, wake time.Time) {
	d := wake.Sub(now)
	if d < 0 {
		d = 0
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.NewTimer(d)
	m.timerC = m.timer.C
	m.logger.Debug("wakeup armed", "in", d)
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerC = nil
}

func categoryKey(c Category) string {
	return keyPrefix + "#" + c.Name()
}

// relax keeps the earliest non-zero deadline.
func relax(current, candidate time.Time) time.Time {
	if current.IsZero() || candidate.Before(current) {
		return candidate
	}
	return current
}
