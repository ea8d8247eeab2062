package services

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/deploymenttheory/go-uffs/internal/blockinfo"
	"github.com/deploymenttheory/go-uffs/internal/config"
	"github.com/deploymenttheory/go-uffs/internal/device"
	"github.com/deploymenttheory/go-uffs/internal/interfaces"
	"github.com/deploymenttheory/go-uffs/internal/pagecache"
	"github.com/deploymenttheory/go-uffs/internal/parsers/pages"
	"github.com/deploymenttheory/go-uffs/internal/tree"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// Volume is a mounted flash device: the metadata tree, the block info
// cache and the page buffer pool over one FlashDevice. Every public method
// is serialised by one mutex.
type Volume struct {
	mu sync.Mutex

	cfg     config.Config
	dev     interfaces.FlashDevice
	tree    *tree.Tree
	blocks  *blockinfo.Cache
	pool    *pagecache.Pool
	log     *logrus.Entry
	session uuid.UUID
	closed  bool

	now func() time.Time
}

// Open mounts a device. The tree is rebuilt from the tags on flash and a
// root directory is created when the device has none.
func Open(ctx context.Context, dev interfaces.FlashDevice, cfg *config.Config, log *logrus.Entry) (*Volume, error) {
	if dev == nil {
		return nil, errors.Wrap(types.ErrInvalidArgument, "flash device cannot be nil")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dev.Geometry() != cfg.Geometry() {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "device geometry %+v does not match config %+v", dev.Geometry(), cfg.Geometry())
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	session := uuid.New()
	v := &Volume{
		cfg:     *cfg,
		dev:     dev,
		log:     log.WithField("session", session.String()),
		session: session,
		now:     time.Now,
	}
	if err := v.mount(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// OpenImage opens a flash image file described by cfg and mounts it
func OpenImage(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*Volume, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	dev, err := device.OpenFileEmulator(cfg.Device.ImagePath, cfg.Geometry(), log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image %s", cfg.Device.ImagePath)
	}
	v, err := Open(ctx, dev, cfg, log)
	if err != nil {
		return nil, multierr.Append(err, dev.Close())
	}
	return v, nil
}

func (v *Volume) poolOptions() pagecache.Options {
	return pagecache.Options{
		MaxBuffers:      v.cfg.Buffers.MaxBuffers,
		MaxDirtyBuffers: v.cfg.Buffers.MaxDirtyBuffers,
		DirtyGroups:     v.cfg.Buffers.DirtyGroups,
		CloneBuffers:    v.cfg.Buffers.CloneBuffers,
		MaxIORetries:    v.cfg.Flush.MaxIORetries,
		Log:             v.log,
	}
}

func (v *Volume) mount(ctx context.Context) error {
	geo := v.dev.Geometry()
	tr := tree.New(geo, v.log)
	if err := tr.Rebuild(ctx, v.dev); err != nil {
		return errors.Wrap(err, "failed to rebuild metadata tree")
	}

	blocks := blockinfo.NewCache(v.dev, v.cfg.BlockInfo.CacheSize)
	pool, err := pagecache.New(v.dev, tr, blocks, v.poolOptions())
	if err != nil {
		return err
	}
	v.tree, v.blocks, v.pool = tr, blocks, pool

	if tr.FindDir(types.RootDirSerial) == nil {
		v.log.Info("creating root directory")
		if err := v.writeInfo(types.ObjectDir, types.ParentOfRoot, types.RootDirSerial, ""); err != nil {
			return errors.Wrap(err, "failed to create root directory")
		}
	}

	stats := tr.Stats()
	v.log.WithFields(logrus.Fields{
		"dirs":   stats.Dirs,
		"files":  stats.Files,
		"erased": stats.Erased,
		"bad":    stats.Bad,
	}).Info("volume mounted")
	return nil
}

// writeInfo creates page 0 of a directory or file and flushes it, which
// gives the object its block
func (v *Volume) writeInfo(typ types.ObjectType, parent, serial types.Serial, name string) error {
	ts := uint32(v.now().Unix())
	fi := types.FileInfo{
		Attr:       types.FileAttrWrite,
		CreateTime: ts,
		LastModify: ts,
		Access:     ts,
		Name:       name,
	}
	if typ == types.ObjectDir {
		fi.Attr |= types.FileAttrDir
	}
	raw, err := pages.EncodeFileInfo(fi)
	if err != nil {
		return err
	}

	b, err := v.pool.New(typ, parent, serial, 0)
	if err != nil {
		return err
	}
	if err := v.pool.Write(b, 0, raw, 0); err != nil {
		return multierr.Append(err, v.pool.Put(b))
	}
	if err := v.pool.Put(b); err != nil {
		return err
	}
	return v.pool.FlushGroup(parent, serial)
}

func (v *Volume) check() error {
	if v.closed {
		return errors.Wrap(types.ErrInvalidState, "volume is closed")
	}
	return nil
}

// Session returns the id tagging this mount's log entries
func (v *Volume) Session() uuid.UUID {
	return v.session
}

// Format erases every block that is not marked bad, retires blocks that
// fail to erase and mounts the empty device
func (v *Volume) Format(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.check(); err != nil {
		return err
	}

	geo := v.dev.Geometry()
	retired := 0
	for b := types.BlockNum(0); uint32(b) < geo.TotalBlocks; b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if v.dev.IsBadBlock(b) {
			continue
		}
		if status := v.dev.EraseBlock(b); status != interfaces.FlashOK {
			v.log.WithFields(logrus.Fields{"block": b, "status": status}).Warn("erase failed during format, retiring block")
			v.dev.MarkBadBlock(b)
			retired++
		}
	}
	v.log.WithField("retired", retired).Info("device formatted")
	return v.mount(ctx)
}

// Info reports geometry, tree population and cache statistics
func (v *Volume) Info() VolumeInfo {
	v.mu.Lock()
	defer v.mu.Unlock()

	info := VolumeInfo{
		Session:  v.session.String(),
		Geometry: v.dev.Geometry(),
		Tree:     v.tree.Stats(),
		Pool:     v.pool.Stats(),
		Cache:    v.blocks.Stats(),
		Recovery: v.pool.LastRecovery(),
	}
	if e, ok := v.dev.(interface{ Stats() device.StatsSnapshot }); ok {
		s := e.Stats()
		info.Device = &s
	}
	return info
}

// Close flushes every dirty page and closes the device. The device is
// closed even when the flush fails.
func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	var err error
	err = multierr.Append(err, v.pool.ReleaseAll())
	err = multierr.Append(err, v.dev.Close())
	if err != nil {
		v.log.WithError(err).Error("volume closed with errors")
		return err
	}
	v.log.Debug("volume closed")
	return nil
}
