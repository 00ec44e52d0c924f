// Package session holds all per-session governance state: the active
// intent, pre-mutation snapshots, stale-block markers, cached HITL
// decisions, and the most recent verification failure.
//
// Everything mutable in the pipeline lives here; the hook engine itself is
// stateless. Sidecar files on disk are the only state shared across
// sessions, and they are owned by the ledger package.
package session

import (
	"sync"
	"time"
)

// ActiveIntent is the intent bound to a session by the selection handshake.
type ActiveIntent struct {
	ID           string
	SelectedAt   time.Time
	ContextBlock string // rendered context returned to the model at selection
}

// Snapshot captures pre-mutation file state for one (tool_call_id, path).
type Snapshot struct {
	Before  *string // text content; nil when the file did not exist, is binary, or exceeds the capture size cap
	Existed bool
	Binary  bool
}

// StaleBlock marks a path known to be out of sync with its snapshot.
type StaleBlock struct {
	Timestamp time.Time
	Tool      string
}

// VerificationFailure describes the most recent optimistic-lock failure.
// It is consumed (and cleared) by the lessons-learned post-hook.
type VerificationFailure struct {
	Tool         string
	Path         string
	ExpectedHash string
	ActualHash   string
	Timestamp    time.Time
}

// UserIntentClassification is the cached verdict for one user message.
type UserIntentClassification struct {
	Verdict     string  // "safe" | "destructive" | "unknown"
	Reason      string
	Confidence  float64 // 0..1
	Source      string  // "llm" | "heuristic" | "fallback" | "none"
	MessageHash string  // SHA-256 of the originating user message
}

// State is the complete mutable record for one session. All accessors are
// safe for concurrent use, though the dispatch pipeline itself runs one
// tool call at a time (see BeginCall).
type State struct {
	ID      string
	WorkDir string

	mu              sync.Mutex
	lastUsed        time.Time
	lastUserMessage string
	active          *ActiveIntent
	snapshots       map[string]map[string]Snapshot // tool_call_id → path → snapshot
	staleBlocks     map[string]StaleBlock          // normalized POSIX path → block
	decisionCache   map[string]bool                // prompt key → approved
	approvedCmds    map[string]bool                // command string → approved this session
	destructiveOKs  map[string]bool                // approval key → approved
	lastFailure     *VerificationFailure
	userIntents     map[string]UserIntentClassification // message hash → verdict
	inFlight        bool
}

// NewState creates an empty session state bound to a workspace directory.
func NewState(id, workDir string) *State {
	return &State{
		ID:             id,
		WorkDir:        workDir,
		lastUsed:       time.Now(),
		snapshots:      make(map[string]map[string]Snapshot),
		staleBlocks:    make(map[string]StaleBlock),
		decisionCache:  make(map[string]bool),
		approvedCmds:   make(map[string]bool),
		destructiveOKs: make(map[string]bool),
		userIntents:    make(map[string]UserIntentClassification),
	}
}

// BeginCall marks the session as serving a tool call. Returns false if a
// call is already in flight; a session serves exactly one call at a time.
func (s *State) BeginCall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	s.lastUsed = time.Now()
	return true
}

// EndCall releases the in-flight flag set by BeginCall.
func (s *State) EndCall() {
	s.mu.Lock()
	s.inFlight = false
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// ── active intent ──

// SetActiveIntent binds an intent to the session, replacing any previous one.
func (s *State) SetActiveIntent(a *ActiveIntent) {
	s.mu.Lock()
	s.active = a
	s.mu.Unlock()
}

// ActiveIntent returns the currently bound intent, or nil.
func (s *State) ActiveIntent() *ActiveIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ClearActiveIntent removes the bound intent (session end or re-selection).
func (s *State) ClearActiveIntent() {
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

// ── user message ──

// SetLastUserMessage records the most recent user prompt text so the gate
// can classify user intent for subsequent tool calls.
func (s *State) SetLastUserMessage(msg string) {
	s.mu.Lock()
	s.lastUserMessage = msg
	s.mu.Unlock()
}

// LastUserMessage returns the most recent user prompt text.
func (s *State) LastUserMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUserMessage
}

// ── snapshots ──

// PutSnapshot stores the pre-mutation snapshot for (callID, path).
func (s *State) PutSnapshot(callID, path string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.snapshots[callID]
	if !ok {
		m = make(map[string]Snapshot)
		s.snapshots[callID] = m
	}
	m[path] = snap
}

// Snapshots returns a copy of the snapshot map for callID.
func (s *State) Snapshots(callID string) map[string]Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.snapshots[callID]
	if !ok {
		return nil
	}
	cp := make(map[string]Snapshot, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// DropSnapshots removes all snapshots recorded for callID. Called by the
// trace writer after it has consumed them.
func (s *State) DropSnapshots(callID string) {
	s.mu.Lock()
	delete(s.snapshots, callID)
	s.mu.Unlock()
}

// ── stale blocks ──

// SetStaleBlock marks a normalized path as out of sync.
func (s *State) SetStaleBlock(path, tool string) {
	s.mu.Lock()
	s.staleBlocks[path] = StaleBlock{Timestamp: time.Now(), Tool: tool}
	s.mu.Unlock()
}

// StaleBlockFor returns the block for a normalized path, if any.
func (s *State) StaleBlockFor(path string) (StaleBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.staleBlocks[path]
	return b, ok
}

// ClearStaleBlock removes the block for a normalized path (override approved
// or a successful write).
func (s *State) ClearStaleBlock(path string) {
	s.mu.Lock()
	delete(s.staleBlocks, path)
	s.mu.Unlock()
}

// ── decision / approval caches ──

// CacheDecision records a HITL answer under an arbitrary prompt key so the
// same prompt is not repeated within the session.
func (s *State) CacheDecision(key string, approved bool) {
	s.mu.Lock()
	s.decisionCache[key] = approved
	s.mu.Unlock()
}

// CachedDecision returns the cached answer for key, if present.
func (s *State) CachedDecision(key string) (approved, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	approved, ok = s.decisionCache[key]
	return
}

// ApproveCommand marks a command string as approved for this session.
func (s *State) ApproveCommand(command string) {
	s.mu.Lock()
	s.approvedCmds[command] = true
	s.mu.Unlock()
}

// CommandApproved reports whether the command was approved this session.
func (s *State) CommandApproved(command string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvedCmds[command]
}

// ApproveDestructive records a destructive-operation approval under key.
func (s *State) ApproveDestructive(key string) {
	s.mu.Lock()
	s.destructiveOKs[key] = true
	s.mu.Unlock()
}

// DestructiveApproved reports whether key was already approved.
func (s *State) DestructiveApproved(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destructiveOKs[key]
}

// ── verification failure ──

// SetVerificationFailure records the most recent lock failure.
func (s *State) SetVerificationFailure(f *VerificationFailure) {
	s.mu.Lock()
	s.lastFailure = f
	s.mu.Unlock()
}

// TakeVerificationFailure returns and clears the recorded failure, if any.
func (s *State) TakeVerificationFailure() *VerificationFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.lastFailure
	s.lastFailure = nil
	return f
}

// ── user-intent cache ──

// CacheUserIntent stores a classification keyed by its message hash.
func (s *State) CacheUserIntent(c UserIntentClassification) {
	s.mu.Lock()
	s.userIntents[c.MessageHash] = c
	s.mu.Unlock()
}

// CachedUserIntent returns the classification for a message hash, if any.
func (s *State) CachedUserIntent(messageHash string) (UserIntentClassification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.userIntents[messageHash]
	return c, ok
}

func (s *State) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *State) lastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
