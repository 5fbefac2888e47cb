package preview1

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/wippyai/wasi-host/errors"
	"github.com/wippyai/wasi-host/fsys"
)

// Errno is a preview1 status code. Zero is success.
type Errno uint16

const (
	ErrnoSuccess Errno = iota
	Errno2big
	ErrnoAcces
	ErrnoAddrinuse
	ErrnoAddrnotavail
	ErrnoAfnosupport
	ErrnoAgain
	ErrnoAlready
	ErrnoBadf
	ErrnoBadmsg
	ErrnoBusy
	ErrnoCanceled
	ErrnoChild
	ErrnoConnaborted
	ErrnoConnrefused
	ErrnoConnreset
	ErrnoDeadlk
	ErrnoDestaddrreq
	ErrnoDom
	ErrnoDquot
	ErrnoExist
	ErrnoFault
	ErrnoFbig
	ErrnoHostunreach
	ErrnoIdrm
	ErrnoIlseq
	ErrnoInprogress
	ErrnoIntr
	ErrnoInval
	ErrnoIo
	ErrnoIsconn
	ErrnoIsdir
	ErrnoLoop
	ErrnoMfile
	ErrnoMlink
	ErrnoMsgsize
	ErrnoMultihop
	ErrnoNametoolong
	ErrnoNetdown
	ErrnoNetreset
	ErrnoNetunreach
	ErrnoNfile
	ErrnoNobufs
	ErrnoNodev
	ErrnoNoent
	ErrnoNoexec
	ErrnoNolck
	ErrnoNolink
	ErrnoNomem
	ErrnoNomsg
	ErrnoNoprotoopt
	ErrnoNospc
	ErrnoNosys
	ErrnoNotconn
	ErrnoNotdir
	ErrnoNotempty
	ErrnoNotrecoverable
	ErrnoNotsock
	ErrnoNotsup
	ErrnoNotty
	ErrnoNxio
	ErrnoOverflow
	ErrnoOwnerdead
	ErrnoPerm
	ErrnoPipe
	ErrnoProto
	ErrnoProtonosupport
	ErrnoPrototype
	ErrnoRange
	ErrnoRofs
	ErrnoSpipe
	ErrnoSrch
	ErrnoStale
	ErrnoTimedout
	ErrnoTxtbsy
	ErrnoXdev
	ErrnoNotcapable
)

var errnoNames = [...]string{
	"ESUCCESS", "E2BIG", "EACCES", "EADDRINUSE", "EADDRNOTAVAIL", "EAFNOSUPPORT",
	"EAGAIN", "EALREADY", "EBADF", "EBADMSG", "EBUSY", "ECANCELED", "ECHILD",
	"ECONNABORTED", "ECONNREFUSED", "ECONNRESET", "EDEADLK", "EDESTADDRREQ",
	"EDOM", "EDQUOT", "EEXIST", "EFAULT", "EFBIG", "EHOSTUNREACH", "EIDRM",
	"EILSEQ", "EINPROGRESS", "EINTR", "EINVAL", "EIO", "EISCONN", "EISDIR",
	"ELOOP", "EMFILE", "EMLINK", "EMSGSIZE", "EMULTIHOP", "ENAMETOOLONG",
	"ENETDOWN", "ENETRESET", "ENETUNREACH", "ENFILE", "ENOBUFS", "ENODEV",
	"ENOENT", "ENOEXEC", "ENOLCK", "ENOLINK", "ENOMEM", "ENOMSG", "ENOPROTOOPT",
	"ENOSPC", "ENOSYS", "ENOTCONN", "ENOTDIR", "ENOTEMPTY", "ENOTRECOVERABLE",
	"ENOTSOCK", "ENOTSUP", "ENOTTY", "ENXIO", "EOVERFLOW", "EOWNERDEAD", "EPERM",
	"EPIPE", "EPROTO", "EPROTONOSUPPORT", "EPROTOTYPE", "ERANGE", "EROFS",
	"ESPIPE", "ESRCH", "ESTALE", "ETIMEDOUT", "ETXTBSY", "EXDEV", "ENOTCAPABLE",
}

func (e Errno) String() string {
	if int(e) < len(errnoNames) {
		return errnoNames[e]
	}
	return fmt.Sprintf("errno(%d)", uint16(e))
}

var fsErrno = map[fsys.ErrorCode]Errno{
	fsys.ErrorIo:                ErrnoIo,
	fsys.ErrorAccess:            ErrnoAcces,
	fsys.ErrorBusy:              ErrnoBusy,
	fsys.ErrorExist:             ErrnoExist,
	fsys.ErrorInvalid:           ErrnoInval,
	fsys.ErrorIsDirectory:       ErrnoIsdir,
	fsys.ErrorLoop:              ErrnoLoop,
	fsys.ErrorTooManyLinks:      ErrnoMlink,
	fsys.ErrorNameTooLong:       ErrnoNametoolong,
	fsys.ErrorNoEntry:           ErrnoNoent,
	fsys.ErrorInsufficientSpace: ErrnoNospc,
	fsys.ErrorNotDirectory:      ErrnoNotdir,
	fsys.ErrorNotEmpty:          ErrnoNotempty,
	fsys.ErrorNotPermitted:      ErrnoPerm,
	fsys.ErrorReadOnly:          ErrnoRofs,
	fsys.ErrorCrossDevice:       ErrnoXdev,
	fsys.ErrorFileTooLarge:      ErrnoFbig,
	fsys.ErrorBadDescriptor:     ErrnoBadf,
	fsys.ErrorNotCapable:        ErrnoNotcapable,
}

var kindErrno = map[errors.Kind]Errno{
	errors.KindInvalidDescriptor: ErrnoBadf,
	errors.KindOutOfBounds:       ErrnoFault,
	errors.KindInvalidOffset:     ErrnoFault,
	errors.KindResourceExhausted: ErrnoNospc,
	errors.KindNotSupported:      ErrnoNosys,
	errors.KindTimeout:           ErrnoTimedout,
	errors.KindInvalidInput:      ErrnoInval,
	errors.KindNotFound:          ErrnoNoent,
	errors.KindClosed:            ErrnoIntr,
	errors.KindUnavailable:       ErrnoIo,
}

// ErrnoOf maps a host error to the status code returned to the guest.
func ErrnoOf(err error) Errno {
	if err == nil {
		return ErrnoSuccess
	}

	var fe *fsys.Error
	if stderrors.As(err, &fe) {
		if e, ok := fsErrno[fe.Code]; ok {
			return e
		}
		return ErrnoIo
	}

	var he *errors.Error
	if stderrors.As(err, &he) {
		if e, ok := kindErrno[he.Kind]; ok {
			return e
		}
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return ErrnoTimedout
	case stderrors.Is(err, context.Canceled):
		return ErrnoIntr
	}
	return ErrnoIo
}
