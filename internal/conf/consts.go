// conf/consts.go hard coded constants and enumerated setting values
package conf

const (
	DefaultSampleRate   = 16000 // requested capture rate
	DefaultWindowLength = 16000 // one second at the default rate
	DefaultSliceLength  = 4000  // 250 ms at the default rate
	BitDepth            = 16
	NumChannels         = 1

	AppName = "audiocontroller"
)

// window.layout
const (
	LayoutRolled   = "rolled"
	LayoutRegister = "register"
)

// dispatch.mode
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// dispatch.cadence
const (
	CadenceEvery  = "every"
	CadenceSkip   = "skip"
	CadencePeriod = "period"
)

// dispatch.overflow
const (
	OverflowDropOldest = "drop-oldest"
	OverflowDropNewest = "drop-newest"
)

// dispatch.snapshot
const (
	SnapshotCopy = "copy"
	SnapshotLock = "lock"
)

// dispatch.on_classify_error
const (
	OnErrorFatal    = "fatal"
	OnErrorContinue = "continue"
)

// output.format
const (
	OutputLog     = "log"
	OutputClassic = "classic"
)
