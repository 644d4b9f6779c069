package optimization

// Run stages reported to the progress observer.
const (
	StageInitialized = "initialized"
	StageGeneration  = "generation"
	StageCompleted   = "completed"
)

// ProgressObserver receives run milestones: population initialized, each
// generation, and completion. The engines never touch shared mutable state
// themselves - progress bookkeeping for async callers lives entirely behind
// this interface.
type ProgressObserver interface {
	OnProgress(stage string, generation, total int)
}

// ObserverFunc adapts a function to the ProgressObserver interface.
type ObserverFunc func(stage string, generation, total int)

// OnProgress implements ProgressObserver.
func (f ObserverFunc) OnProgress(stage string, generation, total int) {
	f(stage, generation, total)
}

// notify calls the observer if one is set.
func notify(obs ProgressObserver, stage string, generation, total int) {
	if obs != nil {
		obs.OnProgress(stage, generation, total)
	}
}
