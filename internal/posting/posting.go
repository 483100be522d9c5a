// Package posting defines the job posting model shared by adapters, the
// pipeline and the record stores.
package posting

import "time"

// Raw is a posting as emitted by a source adapter, before canonicalization
// and cleaning.
type Raw struct {
	URL            string
	Title          string
	Company        string
	Location       string
	Description    string
	Posted         string
	Salary         string
	WorkType       string
	Classification string
	Teaser         string
	Source         string
}

// Posting is a persisted posting keyed by its canonical URL.
type Posting struct {
	ID             string
	URL            string
	Title          string
	Company        string
	Location       string
	Description    string
	PostedAt       time.Time
	PostedRaw      string
	Salary         string
	WorkType       string
	Classification string
	Source         string
	CreatedAt      time.Time
}

// MatchResult is the outcome of scoring a posting against a profile.
// Score is always set; Reasons and Suggestions may be empty.
type MatchResult struct {
	Score       float64
	Reasons     []string
	Suggestions []string
	// Semantic reports whether the language-model stage contributed.
	Semantic bool
}

// Profile is the plain text of the candidate's base document.
type Profile struct {
	Text   string
	Source string
}

// Empty reports whether the profile has no usable text.
func (p Profile) Empty() bool {
	for _, r := range p.Text {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			return false
		}
	}
	return true
}

// Match describes a posting that cleared the threshold and produced an artifact.
type Match struct {
	Title       string  `json:"title"`
	Company     string  `json:"company"`
	URL         string  `json:"url"`
	ArtifactRef string  `json:"artifact_ref"`
	Score       float64 `json:"score"`
	Source      string  `json:"source"`
}

// Record is a persisted posting with its match outcome, when scored.
type Record struct {
	Posting
	Match       *MatchResult
	ArtifactRef string
	ScoredAt    *time.Time
}
