// Package demo is a small framework that ships with burrow so the CLI runs
// out of the box: workers serve a JSON status page over HTTP and an agent
// broadcasts a tick counter to them once the cluster is ready.
//
// Importing the package registers it under the name "demo".
package demo
