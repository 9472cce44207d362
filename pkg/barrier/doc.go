// Package barrier waits for a set of asynchronously updated processes to
// reach a terminal state by polling a classification function at a fixed
// interval.
package barrier
