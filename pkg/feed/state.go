package feed

import (
	"github.com/Sternrassler/postfeed/pkg/client"
	"github.com/Sternrassler/postfeed/pkg/model"
)

// Status is the fetch state of a feed.
type Status int

const (
	// StatusIdle means no fetch is running and the next page may be requested.
	StatusIdle Status = iota
	// StatusLoading means exactly one fetch is outstanding.
	StatusLoading
	// StatusLoaded means the last fetch succeeded and more pages exist.
	StatusLoaded
	// StatusErrored means the last fetch failed. Items are unchanged.
	StatusErrored
	// StatusExhausted means the last page was short. It is terminal until Reset.
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusErrored:
		return "errored"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ErrorInfo is the user-presentable description of a failed fetch.
type ErrorInfo struct {
	Kind    client.ErrorKind
	Message string
}

// State is a snapshot of a feed.
type State struct {
	// Items are unique by ID in feed order.
	Items []model.Item

	// CurrentPage counts the pages applied so far. The next request asks
	// for CurrentPage+1.
	CurrentPage int

	// HasMore is false once a page returned fewer items than the limit.
	HasMore bool

	Status    Status
	LastError *ErrorInfo
}

func initialState() State {
	return State{Items: []model.Item{}, HasMore: true, Status: StatusIdle}
}

// clone returns a deep copy safe to hand to callers.
func (s State) clone() State {
	out := s
	out.Items = make([]model.Item, len(s.Items))
	copy(out.Items, s.Items)
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	return out
}

// errorInfo classifies err without exposing the transport error itself.
func errorInfo(err error) *ErrorInfo {
	return &ErrorInfo{Kind: client.KindOf(err), Message: client.MessageOf(err)}
}
