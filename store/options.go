package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/smallnest/milestonedb/log"
)

// Operation names passed to a Recorder.
const (
	OperationSave  = "save"
	OperationGet   = "get"
	OperationIndex = "index"
)

// Recorder observes store operations. See the metrics package for a
// Prometheus implementation.
type Recorder interface {
	ObserveOperation(operation, collection string, elapsed time.Duration, err error)
	IndexCreated(collection string)
}

// Options configures a MilestoneStore.
type Options struct {
	// URI is a connection descriptor whose scheme selects a registered
	// backend, e.g. "mongodb://localhost:27017/app". Exactly one of URI and
	// Connector must be set.
	URI string

	// Connector resolves the backend instead of URI.
	Connector Connector

	// ConnectOptions are forwarded verbatim to the backend's open function.
	ConnectOptions map[string]any

	// DisableIndexCreation turns off lazy provisioning of MilestoneIndex.
	// Creating an index on a collection that already holds a lot of data can
	// lock up the backing store; operators may prefer to run EnsureIndex or
	// manage indexes out of band.
	DisableIndexCreation bool

	// Logger defaults to log.GetDefaultLogger().
	Logger log.Logger

	// Recorder is optional.
	Recorder Recorder
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration, error) {}
func (nopRecorder) IndexCreated(string)                                  {}

// IntOption reads the integer connect option name and checks it lies within
// [min, max]. ok is false when the option is absent. Strings are accepted
// since options may come from environment variables.
func IntOption(options map[string]any, name string, min, max int64) (n int64, ok bool, err error) {
	raw, present := options[name]
	if !present || raw == nil {
		return 0, false, nil
	}

	if s, isString := raw.(string); isString {
		n, err = strconv.ParseInt(s, 10, 64)
	} else {
		n, err = VersionOf(raw)
	}
	if err != nil {
		return 0, false, &ConfigurationError{Field: name, Reason: fmt.Sprintf("want an integer, got %v", raw)}
	}
	if n < min || n > max {
		return 0, false, &ConfigurationError{Field: name, Reason: fmt.Sprintf("%d is outside [%d, %d]", n, min, max)}
	}
	return n, true, nil
}
