// Package cmd wires the skahactl cobra command tree.
package cmd
