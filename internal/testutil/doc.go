// Package testutil holds in-memory fakes of the pkg/interfaces contracts shared by
// package tests.
package testutil
