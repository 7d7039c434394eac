package scroll

import (
	"slices"

	"feedscroll/internal/model"
)

// GenericErrorMessage is shown when a fetch error carries no message.
const GenericErrorMessage = "something went wrong while loading items"

// State is a point-in-time view of a Controller.
type State struct {
	Items      []model.Item
	Loading    bool
	Err        error
	ErrMessage string
	HasMore    bool
	Cursor     string
	Query      model.Query
	// Generation identifies the query context that produced Items.
	Generation uint64
	// Started is set once a fetch has been issued for the current query.
	Started bool
}

// Empty reports whether the current query finished loading with no items.
func (s State) Empty() bool {
	return s.Started && !s.Loading && s.Err == nil && !s.HasMore && len(s.Items) == 0
}

// Failed reports whether the last fetch failed.
func (s State) Failed() bool { return s.Err != nil }

func (s State) clone() State {
	s.Items = slices.Clone(s.Items)
	s.Query.Tags = slices.Clone(s.Query.Tags)
	return s
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return GenericErrorMessage
	}
	return err.Error()
}
