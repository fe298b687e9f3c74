// Package textutil sanitizes user and remote supplied text before it reaches
// the filesystem or a stored record.
package textutil
