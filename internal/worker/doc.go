// Package worker is the child side of a process unit.
//
// A worker reads one envelope from stdin, runs the task it names and
// writes one reply to stdout, then exits. It enforces its own limits on
// top of the parent's kill timer: a heap growth ceiling checked by a
// watchdog, a CPU time limit where the platform has one, and the job
// deadline on its context.
package worker
