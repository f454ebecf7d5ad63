package codec

import (
	"errors"

	"github.com/exprsn/platform/common/apperr"
)

var (
	// ErrUnknownArtifactKind is wrapped by every unknown-kind failure
	ErrUnknownArtifactKind = errors.New("unknown artifact kind")

	// ErrFileFormat is wrapped by every malformed payload failure
	ErrFileFormat = errors.New("malformed artifact file")
)

func unknownKind(kind string) error {
	return apperr.Wrap(apperr.KindValidation, ErrUnknownArtifactKind, "artifact kind %q", kind)
}

func fileFormat(format string, args ...any) error {
	return apperr.Wrap(apperr.KindValidation, ErrFileFormat, format, args...)
}
