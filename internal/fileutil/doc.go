// Package fileutil holds small filesystem helpers shared by the persistent
// stores.
package fileutil
