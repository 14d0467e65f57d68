package types

// Steam appmanifest StateFlags bits. Valve does not document these; the
// values match what the client writes into appmanifest_<id>.acf.
const (
	StateUninstalled    uint32 = 1 << 0
	StateUpdateRequired uint32 = 1 << 1
	StateFullyInstalled uint32 = 1 << 2
	StateEncrypted      uint32 = 1 << 3
	StateLocked         uint32 = 1 << 4
	StateFilesMissing   uint32 = 1 << 5
	StateAppRunning     uint32 = 1 << 6
	StateFilesCorrupt   uint32 = 1 << 7
	StateUpdateRunning  uint32 = 1 << 8
	StateUpdatePaused   uint32 = 1 << 9
	StateUpdateStarted  uint32 = 1 << 10
	StateUninstalling   uint32 = 1 << 11
	StateBackupRunning  uint32 = 1 << 12
	StateReconfiguring  uint32 = 1 << 16
	StateValidating     uint32 = 1 << 17
	StateAddingFiles    uint32 = 1 << 18
	StatePreallocating  uint32 = 1 << 19
	StateDownloading    uint32 = 1 << 20
	StateStaging        uint32 = 1 << 21
	StateCommitting     uint32 = 1 << 22
	StateUpdateStopping uint32 = 1 << 23
)

// statePendingMask covers every bit meaning the install is mid-operation or damaged.
const statePendingMask = StateUpdateRequired | StateUpdateRunning | StateUpdatePaused |
	StateUpdateStarted | StateValidating | StateAddingFiles | StatePreallocating |
	StateDownloading | StateStaging | StateCommitting | StateUpdateStopping |
	StateFilesMissing | StateFilesCorrupt | StateReconfiguring

// InstallState classifies a manifest's StateFlags.
type InstallState string

// Install states. Only NotInstalled counts as "not installed": every
// ambiguous pattern is treated as installed so a prefix is never flagged
// orphaned on a guess.
const (
	InstallInstalled    InstallState = "installed"
	InstallUpdating     InstallState = "updating"
	InstallNotInstalled InstallState = "not_installed"
	InstallUnknown      InstallState = "unknown"
)

// ClassifyStateFlags maps a StateFlags bitmask to an InstallState.
// ok is false when the flags were missing or unparseable.
func ClassifyStateFlags(flags uint32, ok bool) InstallState {
	if !ok {
		return InstallUnknown
	}
	installed := flags&StateFullyInstalled != 0
	switch {
	case flags == StateUninstalled:
		return InstallNotInstalled
	case flags&StateUninstalling != 0 && !installed:
		return InstallNotInstalled
	case installed && flags&statePendingMask == 0:
		return InstallInstalled
	case installed:
		return InstallUpdating
	default:
		return InstallUnknown
	}
}

// Complete reports whether the state counts as an installed game.
func (s InstallState) Complete() bool {
	return s != InstallNotInstalled
}

// Uncertain reports whether the state is a guess rather than a clean install.
func (s InstallState) Uncertain() bool {
	return s == InstallUpdating || s == InstallUnknown || s == ""
}
