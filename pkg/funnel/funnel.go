package funnel

import "time"

// Stage is a signup funnel stage. Stages advance strictly in funnel order;
// Failed and Abandoned are short-circuit terminals reachable from any
// non-terminal stage.
type Stage string

const (
	StageInitial      Stage = "initial"
	StageViewed       Stage = "viewed"
	StageStarted      Stage = "started"
	StageMethodChosen Stage = "method_chosen"
	StageSubmitted    Stage = "submitted"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
	StageAbandoned    Stage = "abandoned"
)

var stageRank = map[Stage]int{
	StageInitial:      0,
	StageViewed:       1,
	StageStarted:      2,
	StageMethodChosen: 3,
	StageSubmitted:    4,
	StageCompleted:    5,
	StageFailed:       5,
	StageAbandoned:    5,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// Terminal reports whether s closes a session.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageAbandoned
}

// AbandonReason classifies what triggered an abandonment signal.
type AbandonReason string

const (
	ReasonExit       AbandonReason = "exit"
	ReasonNavigation AbandonReason = "navigation"
	ReasonInactivity AbandonReason = "inactivity"
	ReasonError      AbandonReason = "error"
)

// Event is a single funnel transition reported by the client.
type Event struct {
	SessionID   string
	Stage       Stage
	At          time.Time
	LandingPage string
	Referrer    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	Method      string // auth method, set on StageMethodChosen
	ErrorCode   string // set on StageFailed
	DeviceType  string
	Browser     string
}

// Abandonment captures form context at the moment an exit signal fired.
type Abandonment struct {
	SessionID         string
	LastField         string
	TimeOnLastFieldMs int64
	TotalTimeMs       int64
	FieldsTouched     []string
	Reason            AbandonReason
	ErrorContext      string
	At                time.Time
}

// Session is the accumulated funnel state for one browser signup attempt.
// Timestamp pointers are nil until the stage is reached; a nil timestamp
// means "stage not reached", never zero duration.
type Session struct {
	SessionID   string
	Stage       Stage
	LandingPage string
	Referrer    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string

	PageViewedAt    *time.Time
	FormStartedAt   *time.Time
	MethodSelected  string
	FormSubmittedAt *time.Time
	CompletedAt     *time.Time
	FailedAt        *time.Time
	AbandonedAt     *time.Time
	ErrorCode       string

	DeviceType string
	Browser    string
	UpdatedAt  time.Time
}

// Reached reports whether the session reached the given stage.
func (s *Session) Reached(stage Stage) bool {
	switch stage {
	case StageInitial:
		return true
	case StageViewed:
		return s.PageViewedAt != nil
	case StageStarted:
		return s.FormStartedAt != nil
	case StageMethodChosen:
		return s.MethodSelected != ""
	case StageSubmitted:
		return s.FormSubmittedAt != nil
	case StageCompleted:
		return s.CompletedAt != nil
	case StageFailed:
		return s.FailedAt != nil
	case StageAbandoned:
		return s.AbandonedAt != nil
	default:
		return false
	}
}

// Apply advances the session with the event and reports whether anything
// changed. Terminal sessions absorb all later events (first terminal signal
// wins); ordered stages only advance forward; timestamps are clamped so the
// stored sequence stays monotonically non-decreasing.
func (s *Session) Apply(e Event) bool {
	if s.Stage.Terminal() {
		return false
	}
	if !e.Stage.Valid() || e.Stage == StageInitial {
		return false
	}

	// Failed short-circuits from any non-terminal stage. Every other stage
	// must follow its predecessor.
	if e.Stage != StageFailed && stageRank[e.Stage] != stageRank[s.Stage]+1 {
		return false
	}

	at := e.At
	if at.Before(s.UpdatedAt) {
		at = s.UpdatedAt
	}

	switch e.Stage {
	case StageViewed:
		s.PageViewedAt = &at
		s.LandingPage = e.LandingPage
		s.Referrer = e.Referrer
		s.UTMSource = e.UTMSource
		s.UTMMedium = e.UTMMedium
		s.UTMCampaign = e.UTMCampaign
		s.DeviceType = e.DeviceType
		s.Browser = e.Browser
	case StageStarted:
		s.FormStartedAt = &at
	case StageMethodChosen:
		s.MethodSelected = e.Method
	case StageSubmitted:
		s.FormSubmittedAt = &at
	case StageCompleted:
		s.CompletedAt = &at
	case StageFailed:
		s.FailedAt = &at
		s.ErrorCode = e.ErrorCode
	}

	s.Stage = e.Stage
	s.UpdatedAt = at
	return true
}

// Abandon marks the session abandoned unless another terminal state already
// owns it.
func (s *Session) Abandon(at time.Time) bool {
	if s.Stage.Terminal() {
		return false
	}
	if at.Before(s.UpdatedAt) {
		at = s.UpdatedAt
	}
	s.AbandonedAt = &at
	s.Stage = StageAbandoned
	s.UpdatedAt = at
	return true
}
