package handler

import (
	"errors"
	"io/fs"

	"github.com/yndnr/remotely/internal/core/domain"
)

// Error kinds reported in error entries.
const (
	KindNotFound         = "not_found"
	KindPermissionDenied = "permission_denied"
	KindAlreadyExists    = "already_exists"
	KindInvalid          = "invalid"
	KindUnsupported      = "unsupported"
	KindOther            = "other"
)

var (
	errProcessNotFound = errors.New("no such process")
	errMissingField    = errors.New("missing required field")
	errTooLarge        = errors.New("too large for one response")
)

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedRequest):
		return KindUnsupported
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, errProcessNotFound):
		return KindNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, fs.ErrExist):
		return KindAlreadyExists
	case errors.Is(err, fs.ErrInvalid), errors.Is(err, errMissingField), errors.Is(err, errTooLarge):
		return KindInvalid
	default:
		return KindOther
	}
}
