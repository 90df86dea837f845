// Package parallel implements a capture/replay driver for analysis
// pipelines built out of a serial stream of expensive, cacheable function
// calls.
//
// A function is marked parallelizable with Parallelized. Inside a Driver
// scope, the user's serial code runs twice through Drive (or, manually,
// through Open and Run): once in capturing mode, during which every
// non-cached parallelizable call is recorded and answered with a
// placeholder value, and once in replaying mode, during which every call
// is resolved from the cache populated by the backend between the two
// runs.
//
// The core never spawns goroutines of its own beyond what a Backend
// chooses to use internally, and never returns a batch result directly;
// results only ever reach the caller through the Cache.
package parallel
