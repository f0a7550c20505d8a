// Package stream provides small channel-based event-stream operators.
//
// Components never share memory; they exchange events over channels. The
// operators here are the building blocks for that: Broadcaster fans one
// event out to every subscriber, Filter drops uninteresting events and
// Debounce collapses a burst of events into one trigger once the stream has
// been quiet for a fixed window.
package stream
