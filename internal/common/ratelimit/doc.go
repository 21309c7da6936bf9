// Package ratelimit throttles callers of the worker endpoint per client
// address using golang.org/x/time/rate token buckets.
package ratelimit
