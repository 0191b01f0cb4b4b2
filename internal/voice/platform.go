// Package voice wraps a streaming speech recognizer behind a permission
// gate, a per-attempt timeout, and classified error reporting.
package voice

import "runtime"

// platformQuirks captures recognizer behaviors that differ per platform.
type platformQuirks struct {
	// forceNonContinuous disables continuous recognition on platforms
	// where the recognizer drops or duplicates results in that mode.
	forceNonContinuous bool
	// singleAlternative limits results to one alternative where the
	// recognizer's ranked alternatives are unreliable.
	singleAlternative bool
}

// detectQuirks returns the quirks table entry for an operating system.
func detectQuirks(goos string) platformQuirks {
	switch goos {
	case "darwin", "ios":
		return platformQuirks{forceNonContinuous: true}
	case "windows":
		return platformQuirks{singleAlternative: true}
	default:
		return platformQuirks{}
	}
}

// currentQuirks is the quirks entry for the running platform.
func currentQuirks() platformQuirks {
	return detectQuirks(runtime.GOOS)
}
