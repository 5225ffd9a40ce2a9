// Package myaudio captures audio slices and turns them into classification windows.
//
// A Source delivers fixed-size slices of 16-bit mono samples. Each slice is
// rolled into a SlidingWindow, which always holds the most recent
// windowLength samples in chronological order. A Dispatcher gates the
// window until it has warmed up, applies the cadence policy and hands
// windows to a WindowHandler either inline on the capture goroutine or on a
// bounded worker pool.
//
// The window is only ever mutated by the capture goroutine. Asynchronous
// handlers see either a pooled copy of the window or the live window under
// its read lock, never a window that is being rolled.
package myaudio
