package bulkclean

// Observer receives run events, typically to render progress.
// Calls happen on the goroutine running Cleanup, in loop order.
type Observer interface {
	// Start is called once with the initial progress value and the
	// approximate total key count.
	Start(initial, total uint64)
	// Progress reports the converted cursor after each SCAN step.
	Progress(pos uint64)
	// Matched is called for each matching key in dry-run mode.
	Matched(key string)
	// Deleted reports keys removed by one delete.
	Deleted(n int64)
	// CheckpointSaved reports a persisted cursor.
	CheckpointSaved(cursor uint64)
	// CheckpointFailed reports a checkpoint write that did not go through.
	CheckpointFailed(err error)
	// Done is called when the run stops, successfully or not.
	Done(r Result)
}

type nopObserver struct{}

func (nopObserver) Start(uint64, uint64)   {}
func (nopObserver) Progress(uint64)        {}
func (nopObserver) Matched(string)         {}
func (nopObserver) Deleted(int64)          {}
func (nopObserver) CheckpointSaved(uint64) {}
func (nopObserver) CheckpointFailed(error) {}
func (nopObserver) Done(Result)            {}
