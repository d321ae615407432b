package client

import "github.com/gammazero/workerpool"

// newRenewalPool returns the single-worker pool the background
// secure-channel renewal task runs on, off the caller's own goroutine.
// MaxWorkers is 1: a channel is renewed at most once at a time, so
// nothing is gained from more.
func newRenewalPool() *workerpool.WorkerPool {
	return workerpool.New(1)
}
