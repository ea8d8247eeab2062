package device

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/tchajed/goose/machine/disk"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

// ErrImageLocked is returned when another process holds the image lock.
var ErrImageLocked = errors.New("flash image is locked by another process")

// OpenFileEmulator opens a flash image file, creating it fully erased when it
// does not exist. The image is held under an exclusive advisory lock until
// Close.
func OpenFileEmulator(path string, geo types.Geometry, log *logrus.Entry) (*Emulator, error) {
	if err := checkGeometry(geo); err != nil {
		return nil, err
	}

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	lockFile, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open flash image %s", path)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lockFile.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.Wrapf(ErrImageLocked, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to lock flash image %s", path)
	}

	fd, err := disk.NewFileDisk(path, geo.TotalPages())
	if err != nil {
		unlock(lockFile)
		return nil, errors.Wrapf(err, "failed to map flash image %s", path)
	}

	e := newEmulator(geo, fd, log)
	e.log = e.log.WithField("image", path)
	e.closer = func() error {
		var closeErr error
		switch c := e.disk.(type) {
		case interface{ Close() }:
			c.Close()
		}
		return multierr.Append(closeErr, unlock(lockFile))
	}

	if fresh {
		e.log.Info("creating erased flash image")
		e.eraseAll()
	}
	return e, nil
}

func unlock(f *os.File) error {
	return multierr.Append(
		unix.Flock(int(f.Fd()), unix.LOCK_UN),
		f.Close(),
	)
}
