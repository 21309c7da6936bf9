// Package transfer copies arbitrary Go values from the host into an
// isolated destination realm.
//
// A realm is anything implementing Context: a plain Go tree used as a
// template context, or a goja runtime used by the expression sandbox.
// Transfer walks the source once, allocating containers in the
// destination and recording every reference-typed value it has already
// visited, so shared and cyclic graphs keep their shape on the other
// side. Functions become host stubs: calling one from the realm runs the
// Go function on copies of its arguments and copies the result back in.
// Function source text (Source) is compiled inside the realm instead.
//
// The copy never aliases host memory. Mutating either side after a
// transfer leaves the other untouched.
package transfer
