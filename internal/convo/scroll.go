package convo

// followProximity is how close to the bottom edge, in lines, the viewport may
// sit and still count as "at bottom".
const followProximity = 3

// Follow decides, per store mutation, whether the viewport should advance to
// the newest message. The rule: the user's own actions (send, conversation
// switch) always scroll; assistant streaming scrolls only if the user was
// already at the bottom, never yanking the viewport out from under someone
// reading history.
type Follow struct {
	atBottom     bool
	forcePending bool
}

// NewFollow starts at the bottom, matching a freshly rendered conversation.
func NewFollow() *Follow { return &Follow{atBottom: true} }

// Observe updates the at-bottom state from viewport metrics: the current
// scroll offset, the viewport height, and the total content height in lines.
func (f *Follow) Observe(offset, height, total int) {
	f.atBottom = offset+height >= total-followProximity
}

// SetAtBottom overrides the at-bottom state directly, for viewports that
// expose the judgement themselves.
func (f *Follow) SetAtBottom(atBottom bool) { f.atBottom = atBottom }

// NoteMutation records a store mutation. userInitiated covers the user's own
// send and a conversation switch; everything else is streaming.
func (f *Follow) NoteMutation(userInitiated bool) {
	if userInitiated || f.atBottom {
		f.forcePending = true
	}
}

// ShouldForceScrollNow is the one-shot intent consumed by the viewport: true
// at most once per pending mutation, then cleared.
func (f *Follow) ShouldForceScrollNow() bool {
	p := f.forcePending
	f.forcePending = false
	return p
}
