// ABOUTME: Sequenced playback core package
// ABOUTME: Orders out-of-order units and drives a Player one unit at a time
// Package sequencer plays discretely numbered units exactly once, in strictly
// ascending id order, no matter what order they arrive in.
//
// The package has three moving parts:
//   - Buffer: gap-waiting storage keyed by id, with a floor below which ids are rejected
//   - Scheduler: the playback state machine (Idle, Waiting, Playing, Released)
//   - Observer: the single subscriber that receives lifecycle events
//
// Decoding and rendering are delegated to a Player. Results coming back from the
// Player carry the epoch they were issued under, so results from a stopped or
// cleared session are discarded.
//
// Example:
//
//	sched := sequencer.NewScheduler(sequencer.Config{Player: engine})
//	sched.Subscribe(sequencer.ObserverFunc(func(e sequencer.Event) {
//	    fmt.Println(e.Type, e.ID)
//	}))
//	sched.ConfigureStart(0)
//	sched.Enqueue(1, second)
//	sched.Enqueue(0, first) // plays 0, then 1
package sequencer
