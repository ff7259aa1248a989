// Package util holds small parsing and formatting helpers shared by config
// and transport code.
package util
