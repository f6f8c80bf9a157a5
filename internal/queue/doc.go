// Package queue persists pipeline work items in SQLite and guards every
// state transition with compare-and-set updates so concurrent workers and
// a recovering daemon can never dispatch the same item twice.
package queue
