package drill

// WithInlineOpen makes the controller open recognition sessions on the
// mailbox goroutine, so tests driving the mailbox by hand see the session
// as soon as RunPending returns.
func WithInlineOpen() Option {
	return func(c *Controller) { c.spawn = func(f func()) { f() } }
}
