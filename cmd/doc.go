// Package cmd implements the command-line interface of urcu. The commands do not add
// functionality to the library; they drive it.
//
// The package is organized into several subpackages:
//
//   - torture: Concurrent stress tests that detect premature reclamation, lost callbacks
//     and broken queue and stack invariants
//   - perf: Throughput benchmarks of the library operations with optional CSV and
//     Prometheus output
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See urcu -help for a list of all commands.
package cmd
