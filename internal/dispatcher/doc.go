// Package dispatcher runs tasks inside isolation units.
//
// A unit runs exactly one job and is then torn down, so a job that
// faults, leaks or hangs can never affect the next one. Thread units run
// the task on a goroutine in this process and may receive live Go
// callables. Process units re-execute a worker binary, exchange a JSON
// envelope over stdin and stdout and therefore only ever carry
// transport-safe values, with callables serialized to source text.
//
// Throughput comes from running several units at once; the number of
// concurrently running units is bounded by a weighted semaphore.
package dispatcher
