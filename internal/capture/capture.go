// Package capture defines what the signal sources have in common.
//
// Sources that feed the cognitive sensor expose typed accessors (Level,
// Active, Changed); Capture is the uniform one-shot read behind Probe,
// which the daemon logs at startup and `echo config show` prints.
package capture

import (
	"context"
	"time"
)

// Capturer is a probe-able signal source.
type Capturer interface {
	// Name identifies the source ("audio", "window", "clipboard").
	Name() string
	// Available reports whether the tools or devices it needs exist.
	Available() bool
	// Capture reads the source once.
	Capture(ctx context.Context) (*Result, error)
}

// Result is one read of a source.
type Result struct {
	Source    string
	Timestamp time.Time

	RawData  []byte // audio samples
	TextData string // window title, clipboard text

	Metadata map[string]string
}

// NewResult creates a Result stamped now.
func NewResult(source string) *Result {
	return &Result{
		Source:    source,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// SetMetadata sets key and returns r.
func (r *Result) SetMetadata(key, value string) *Result {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
	return r
}

// Status is the outcome of probing one source.
type Status struct {
	Name      string            `json:"name"`
	Available bool              `json:"available"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Probe reads every available source once, each bounded by timeout.
func Probe(ctx context.Context, timeout time.Duration, sources ...Capturer) []Status {
	out := make([]Status, 0, len(sources))
	for _, src := range sources {
		st := Status{Name: src.Name(), Available: src.Available()}
		if st.Available {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			r, err := src.Capture(cctx)
			cancel()
			if err != nil {
				st.Error = err.Error()
			} else if r != nil {
				st.Metadata = r.Metadata
			}
		}
		out = append(out, st)
	}
	return out
}
