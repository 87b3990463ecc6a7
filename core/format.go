package core

import (
	"fmt"
	"strconv"
	"strings"
)

// This file centralizes constants related to file formats and magic numbers.

// --- Magic Numbers ---
const (
	// LakeMagicNumber identifies a lake log file.
	LakeMagicNumber uint32 = 0x4B414C4E // "NLAK"
)

// --- File Names & Suffixes ---
const (
	// LogFileSuffix is the suffix for lake log files.
	LogFileSuffix = ".lake"
	// LockFileName is the advisory lock held by the process that owns a lake directory.
	LockFileName = "LOCK"
)

// --- Format Versions ---
const (
	// FormatVersion is the current version of the log file format.
	FormatVersion uint8 = 1
)

// --- Default Sizes & Limits ---
const (
	// DefaultMaxFileSize is the default size at which the active log file is rotated.
	DefaultMaxFileSize = 64 * 1024 * 1024 // 64 MB
)

// FormatLogFileName creates a log file name from its ID.
func FormatLogFileName(id uint64) string {
	return fmt.Sprintf("%08d%s", id, LogFileSuffix)
}

// ParseLogFileName extracts the ID from a log file name.
func ParseLogFileName(name string) (uint64, error) {
	if !strings.HasSuffix(name, LogFileSuffix) {
		return 0, fmt.Errorf("file %s is not a lake log file", name)
	}
	name = strings.TrimSuffix(name, LogFileSuffix)
	return strconv.ParseUint(name, 10, 64)
}
