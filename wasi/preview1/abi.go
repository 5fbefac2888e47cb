package preview1

// ModuleName is the import module every preview1 function is exported under.
const ModuleName = "wasi_snapshot_preview1"

// Filetype values.
const (
	FiletypeUnknown uint8 = iota
	FiletypeBlockDevice
	FiletypeCharacterDevice
	FiletypeDirectory
	FiletypeRegularFile
	FiletypeSocketDgram
	FiletypeSocketStream
	FiletypeSymbolicLink
)

// Clock identifiers.
const (
	ClockRealtime uint32 = iota
	ClockMonotonic
	ClockProcessCputime
	ClockThreadCputime
)

// Whence values for fd_seek.
const (
	WhenceSet uint8 = iota
	WhenceCur
	WhenceEnd
)

// Open flags for path_open.
const (
	OflagCreat     uint16 = 1 << 0
	OflagDirectory uint16 = 1 << 1
	OflagExcl      uint16 = 1 << 2
	OflagTrunc     uint16 = 1 << 3
)

// Lookup flags.
const LookupSymlinkFollow uint32 = 1 << 0

// Subscription and event types for poll_oneoff.
const (
	EventtypeClock uint8 = iota
	EventtypeFdRead
	EventtypeFdWrite
)

// SubclockAbstime marks a clock subscription timeout as absolute.
const SubclockAbstime uint16 = 1 << 0

// Preopen tag for directories.
const PreopentypeDir uint8 = 0

// Encoded sizes.
const (
	sizeFdstat       = 24
	sizeFilestat     = 64
	sizePrestat      = 8
	sizeDirentHeader = 24
	sizeSubscription = 48
	sizeEvent        = 32
)
