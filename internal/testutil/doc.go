// Package testutil provides fluent builders shared by package tests.
package testutil
