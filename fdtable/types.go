package fdtable

// Descriptor is a guest-visible file descriptor number.
// 0, 1 and 2 are reserved for standard input, output and error.
type Descriptor uint32

const (
	Stdin  Descriptor = 0
	Stdout Descriptor = 1
	Stderr Descriptor = 2
)

// Kind is the type of resource behind a descriptor.
type Kind uint8

const (
	KindStdin Kind = iota
	KindStdout
	KindStderr
	KindPreopenDir
	KindRegularFile
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindStdin:
		return "stdin"
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	case KindPreopenDir:
		return "preopen"
	case KindRegularFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// IsDir reports whether the kind is directory-like.
func (k Kind) IsDir() bool {
	return k == KindPreopenDir || k == KindDirectory
}

// Rights is a preview1 rights bitset.
type Rights uint64

const (
	RightFdDatasync Rights = 1 << iota
	RightFdRead
	RightFdSeek
	RightFdFdstatSetFlags
	RightFdSync
	RightFdTell
	RightFdWrite
	RightFdAdvise
	RightFdAllocate
	RightPathCreateDirectory
	RightPathCreateFile
	RightPathLinkSource
	RightPathLinkTarget
	RightPathOpen
	RightFdReaddir
	RightPathReadlink
	RightPathRenameSource
	RightPathRenameTarget
	RightPathFilestatGet
	RightPathFilestatSetSize
	RightPathFilestatSetTimes
	RightFdFilestatGet
	RightFdFilestatSetSize
	RightFdFilestatSetTimes
	RightPathSymlink
	RightPathRemoveDirectory
	RightPathUnlinkFile
	RightPollFdReadwrite
	RightSockShutdown
	RightSockAccept
)

const (
	// RightsFile is granted to regular files.
	RightsFile = RightFdDatasync | RightFdRead | RightFdSeek | RightFdFdstatSetFlags |
		RightFdSync | RightFdTell | RightFdWrite | RightFdAdvise | RightFdAllocate |
		RightFdFilestatGet | RightFdFilestatSetSize | RightFdFilestatSetTimes | RightPollFdReadwrite

	// RightsDir is granted to directories.
	RightsDir = RightFdFdstatSetFlags | RightFdSync | RightPathCreateDirectory | RightPathCreateFile |
		RightPathLinkSource | RightPathLinkTarget | RightPathOpen | RightFdReaddir |
		RightPathReadlink | RightPathRenameSource | RightPathRenameTarget | RightPathFilestatGet |
		RightPathFilestatSetSize | RightPathFilestatSetTimes | RightFdFilestatGet |
		RightFdFilestatSetTimes | RightPathSymlink | RightPathRemoveDirectory | RightPathUnlinkFile

	// RightsStdin is granted to standard input.
	RightsStdin = RightFdRead | RightFdFdstatSetFlags | RightFdFilestatGet | RightPollFdReadwrite

	// RightsStdout is granted to standard output and error.
	RightsStdout = RightFdWrite | RightFdFdstatSetFlags | RightFdFilestatGet | RightPollFdReadwrite
)

// Flags is a preview1 fdflags bitset.
type Flags uint16

const (
	FlagAppend Flags = 1 << iota
	FlagDsync
	FlagNonblock
	FlagRsync
	FlagSync
)

// EventType identifies descriptor lifecycle notifications.
type EventType uint8

const (
	EventOpened EventType = iota
	EventClosed
)

// Event represents a descriptor lifecycle event.
type Event struct {
	Entry *Entry
	FD    Descriptor
	Kind  Kind
	Type  EventType
}

// Observer receives notifications about descriptor lifecycle events.
type Observer interface {
	OnDescriptorEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnDescriptorEvent(e Event) { f(e) }
