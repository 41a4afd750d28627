package content

// Artifact is a structured piece of generated content for one stage.
type Artifact struct {
	Stage   StageName      `json:"stage"`
	Focus   string         `json:"focus"`
	Content map[string]any `json:"content"`
}

// Degraded is the fallback payload a stage keeps when generation or parsing
// did not produce a structured artifact.
type Degraded struct {
	Stage  StageName `json:"stage"`
	Focus  string    `json:"focus"`
	Raw    string    `json:"raw"`
	Reason string    `json:"reason"`
}

// Result is exactly one of Artifact or Degraded.
type Result struct {
	artifact *Artifact
	degraded *Degraded
}

func Ok(a Artifact) Result        { return Result{artifact: &a} }
func Degrade(d Degraded) Result   { return Result{degraded: &d} }
func (r Result) IsDegraded() bool { return r.degraded != nil }

func (r Result) Artifact() (Artifact, bool) {
	if r.artifact == nil {
		return Artifact{}, false
	}
	return *r.artifact, true
}

func (r Result) Degraded() (Degraded, bool) {
	if r.degraded == nil {
		return Degraded{}, false
	}
	return *r.degraded, true
}

// Record is the persisted shape of a result.
func (r Result) Record() map[string]any {
	if r.degraded != nil {
		return map[string]any{
			"stage":    string(r.degraded.Stage),
			"focus":    r.degraded.Focus,
			"degraded": true,
			"raw":      r.degraded.Raw,
			"reason":   r.degraded.Reason,
		}
	}
	if r.artifact != nil {
		return map[string]any{
			"stage":    string(r.artifact.Stage),
			"focus":    r.artifact.Focus,
			"degraded": false,
			"content":  r.artifact.Content,
		}
	}
	return map[string]any{"degraded": true, "reason": "empty result"}
}
