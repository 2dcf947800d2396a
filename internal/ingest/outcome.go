package ingest

import "errors"

// Outcome is the terminal state of one image.
type Outcome int

const (
	Accepted Outcome = iota
	RejectedBlacklist
	RejectedDuplicate
	RejectedNoFace
	RejectedMultiFace
	RejectedError
)

var outcomeNames = [...]string{
	Accepted:          "accepted",
	RejectedBlacklist: "rejected-blacklist",
	RejectedDuplicate: "rejected-duplicate",
	RejectedNoFace:    "rejected-no-face",
	RejectedMultiFace: "rejected-multi-face",
	RejectedError:     "rejected-error",
}

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{Accepted, RejectedBlacklist, RejectedDuplicate, RejectedNoFace, RejectedMultiFace, RejectedError}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

var (
	// ErrDecode marks an image that could not be read or parsed.
	ErrDecode = errors.New("image could not be decoded")
	// ErrNoFace marks an image with zero detections.
	ErrNoFace = errors.New("no face found")
	// ErrMultiFace marks an image rejected for holding more than one face.
	ErrMultiFace = errors.New("more than one face found")
)

// Result describes what happened to one source file.
type Result struct {
	Filename     string
	Outcome      Outcome
	MatchedLabel string // blacklist or database label for the two match outcomes
	Faces        int    // detections reported by the engine
	Err          error  // cause, for the Rejected* outcomes that have one
}

// Stats counts outcomes over a run.
type Stats map[Outcome]int

// Total is the number of images evaluated.
func (s Stats) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}
