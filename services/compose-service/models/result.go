package models

// Status of a single pair inside a run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusAnalyzing:
		return 1
	case StatusGenerating:
		return 2
	case StatusDone, StatusError:
		return 3
	default:
		return -1
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// CanAdvanceTo reports whether moving from s to next keeps the status moving
// forward along queued -> analyzing -> generating -> done|error.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.Terminal() || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// GenerationResult is the per-pair status record of one run.
type GenerationResult struct {
	Status       Status      `json:"status"`
	AnalysisText string      `json:"analysis,omitempty"`
	RawText      string      `json:"textResponse,omitempty"`
	ImageURL     string      `json:"imageUrl,omitempty"`
	ImageData    *ImageAsset `json:"-"`
	ErrorMessage string      `json:"error,omitempty"`
	ErrorCode    string      `json:"code,omitempty"`
	UsedFallback bool        `json:"usedFallback,omitempty"`
}

// NewQueuedResult returns the initial record for a pair entering a run.
func NewQueuedResult() GenerationResult {
	return GenerationResult{Status: StatusQueued}
}

// Advance moves the result to next if the transition is forward-only.
func (r *GenerationResult) Advance(next Status) bool {
	if !r.Status.CanAdvanceTo(next) {
		return false
	}
	r.Status = next
	return true
}

// Complete records a successful outcome and marks the result done.
func (r *GenerationResult) Complete(outcome *GenerationOutcome) bool {
	if !r.Advance(StatusDone) {
		return false
	}
	if outcome != nil {
		r.AnalysisText = outcome.AnalysisText
		r.RawText = outcome.RawText
		r.ImageURL = outcome.ImageURL
		r.ImageData = outcome.Image
		r.UsedFallback = outcome.UsedFallback
	}
	return true
}

// Fail records an error and marks the result terminal.
func (r *GenerationResult) Fail(message, code string) bool {
	if !r.Advance(StatusError) {
		return false
	}
	r.ErrorMessage = message
	r.ErrorCode = code
	return true
}

// GenerationOutcome is the normalized response of one remote generation.
type GenerationOutcome struct {
	AnalysisText string
	RawText      string
	ImageURL     string
	Image        *ImageAsset
	UsedFallback bool
}

// HasImage reports whether the provider produced an image.
func (o *GenerationOutcome) HasImage() bool {
	return o != nil && o.ImageURL != ""
}
