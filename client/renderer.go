package client

// Renderer redraws parts of the board from State. Calls arrive on the
// Reconciler's lane, one at a time.
type Renderer interface {
	RenderAll(state *State)
	RenderBoard(state *State, boardID string)
	RenderSections(state *State, sectionIDs ...string)
}

// NopRenderer draws nothing.
type NopRenderer struct{}

func (NopRenderer) RenderAll(*State)                 {}
func (NopRenderer) RenderBoard(*State, string)       {}
func (NopRenderer) RenderSections(*State, ...string) {}
