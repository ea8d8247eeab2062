package services

import (
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/deploymenttheory/go-uffs/internal/pagecache"
	"github.com/deploymenttheory/go-uffs/internal/parsers/pages"
	"github.com/deploymenttheory/go-uffs/internal/tree"
	"github.com/deploymenttheory/go-uffs/internal/types"
)

// Object data layout. A file block holds FileInfo in page 0 and the first
// ppb-1 pages of data after it. Data extent k (k >= 1) is a block of its
// own, parent = file serial, holding the next ppb full pages.

// location is the page holding a byte of file data
type location struct {
	typ    types.ObjectType
	parent types.Serial
	serial types.Serial
	page   types.PageID
	ofs    int
}

func (v *Volume) locate(file types.Serial, pos int64) location {
	pg := int64(v.pool.PageSize())
	ppb := int64(v.dev.Geometry().PagesPerBlock)

	head := (ppb - 1) * pg
	if pos < head {
		return location{
			typ:    types.ObjectFile,
			parent: types.InvalidSerial,
			serial: file,
			page:   types.PageID(pos/pg + 1),
			ofs:    int(pos % pg),
		}
	}
	rel := pos - head
	ext := ppb * pg
	return location{
		typ:    types.ObjectData,
		parent: file,
		serial: types.Serial(rel/ext + 1),
		page:   types.PageID((rel % ext) / pg),
		ofs:    int(rel % pg),
	}
}

// maxFileSize is the largest size the extent serial space can address
func (v *Volume) maxFileSize() int64 {
	pg := int64(v.pool.PageSize())
	ppb := int64(v.dev.Geometry().PagesPerBlock)
	return (ppb-1)*pg + int64(types.MaxDataSerial)*ppb*pg
}

// Root returns a handle to the root directory
func (v *Volume) Root() *Object {
	return &Object{Type: types.ObjectDir, Parent: types.ParentOfRoot, Serial: types.RootDirSerial}
}

func (v *Volume) node(obj *Object) (*tree.Node, error) {
	if obj == nil {
		return nil, errors.Wrap(types.ErrInvalidArgument, "nil object")
	}
	n := v.tree.Find(obj.Type, obj.Parent, obj.Serial)
	if n == nil || n.Parent != obj.Parent {
		return nil, errors.Wrapf(types.ErrObjectNotFound, "%s serial %d", obj.Type, obj.Serial)
	}
	return n, nil
}

func (v *Volume) fileNode(obj *Object) (*tree.Node, error) {
	if obj != nil && obj.Type != types.ObjectFile {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "%s serial %d is not a file", obj.Type, obj.Serial)
	}
	return v.node(obj)
}

func (v *Volume) loadInfo(n *tree.Node) (types.FileInfo, error) {
	b, err := v.pool.GetOrLoad(n, 0, 0)
	if err != nil {
		return types.FileInfo{}, err
	}
	fi, err := pages.DecodeFileInfo(b.Bytes())
	if perr := v.pool.Put(b); err == nil {
		err = perr
	}
	return fi, err
}

func (v *Volume) loadName(n *tree.Node) (string, error) {
	fi, err := v.loadInfo(n)
	return fi.Name, err
}

func checkName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return errors.Wrapf(types.ErrInvalidArgument, "invalid name %q", name)
	case strings.ContainsRune(name, '/'):
		return errors.Wrapf(types.ErrInvalidArgument, "name %q contains a path separator", name)
	case len(name) > types.MaxFileNameLength:
		return errors.Wrapf(types.ErrInvalidArgument, "name is %d bytes, max %d", len(name), types.MaxFileNameLength)
	}
	return nil
}

// lookup finds a directory or file called name in dir, of either kind
func (v *Volume) lookup(dir types.Serial, name string) (*tree.Node, error) {
	for _, kind := range []tree.Kind{tree.KindDir, tree.KindFile} {
		n, err := v.tree.FindByName(dir, name, kind, v.loadName)
		if err != nil || n != nil {
			return n, err
		}
	}
	return nil, nil
}

// OpenOrCreate opens the directory or file called name in parent. With
// OpenCreate a missing object is created; with OpenExcl as well, an
// existing one is an error.
func (v *Volume) OpenOrCreate(parent types.Serial, name string, typ types.ObjectType, flags types.OpenFlags) (*Object, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return nil, err
	}
	return v.openOrCreate(parent, name, typ, flags)
}

func (v *Volume) openOrCreate(parent types.Serial, name string, typ types.ObjectType, flags types.OpenFlags) (*Object, error) {
	if typ != types.ObjectDir && typ != types.ObjectFile {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "cannot open a %s object", typ)
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	if v.tree.FindDir(parent) == nil {
		return nil, errors.Wrapf(types.ErrObjectNotFound, "parent directory %d", parent)
	}

	found, err := v.lookup(parent, name)
	if err != nil {
		return nil, err
	}
	if found != nil {
		if flags&types.OpenCreate != 0 && flags&types.OpenExcl != 0 {
			return nil, errors.Wrapf(types.ErrExists, "%q in directory %d", name, parent)
		}
		if found.Kind.ObjectType() != typ {
			return nil, errors.Wrapf(types.ErrExists, "%q in directory %d is a %s", name, parent, found.Kind)
		}
		return &Object{Type: typ, Parent: parent, Serial: found.Serial, Name: name}, nil
	}

	if flags&types.OpenCreate == 0 {
		return nil, errors.Wrapf(types.ErrObjectNotFound, "%q in directory %d", name, parent)
	}

	serial, err := v.tree.AllocateSerial()
	if err != nil {
		return nil, err
	}
	if err := v.writeInfo(typ, parent, serial, name); err != nil {
		// a page 0 left dirty would create the object on a later flush
		err = multierr.Append(err, v.pool.Discard(parent, serial))
		return nil, errors.Wrapf(err, "failed to create %q", name)
	}
	v.log.WithFields(logrus.Fields{
		"name":   name,
		"type":   typ,
		"parent": parent,
		"serial": serial,
	}).Debug("object created")
	return &Object{Type: typ, Parent: parent, Serial: serial, Name: name}, nil
}

// page returns a referenced buffer for one page of file data, loading it
// from flash when the page already exists
func (v *Volume) page(loc location, parent types.Serial) (*pagecache.Buffer, error) {
	if loc.typ == types.ObjectFile {
		loc.parent = parent
	}
	if b := v.pool.Get(loc.parent, loc.serial, loc.page); b != nil {
		return b, nil
	}
	if owner := v.tree.Find(loc.typ, loc.parent, loc.serial); owner != nil {
		b, err := v.pool.GetOrLoad(owner, loc.page, 0)
		if !errors.Is(err, types.ErrObjectNotFound) {
			return b, err
		}
	}
	return v.pool.New(loc.typ, loc.parent, loc.serial, loc.page)
}

// writeRange writes data, or n zero bytes when data is nil, at pos
func (v *Volume) writeRange(obj *Object, pos int64, data []byte, n int) (int, error) {
	if data != nil {
		n = len(data)
	}
	pg := v.pool.PageSize()
	done := 0
	for done < n {
		loc := v.locate(obj.Serial, pos+int64(done))
		chunk := pg - loc.ofs
		if chunk > n-done {
			chunk = n - done
		}

		b, err := v.page(loc, obj.Parent)
		if err != nil {
			return done, err
		}
		var src []byte
		if data != nil {
			src = data[done : done+chunk]
		}
		werr := v.pool.Write(b, loc.ofs, src, chunk)
		if err := v.pool.Put(b); werr == nil {
			werr = err
		}
		if werr != nil {
			return done, werr
		}
		done += chunk
	}
	return done, nil
}

// Write stores data at ofs. Writing past the end of the file fills the
// gap with zeros. The data is durable after Flush.
func (v *Volume) Write(obj *Object, ofs int64, data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return 0, err
	}

	n, err := v.fileNode(obj)
	if err != nil {
		return 0, err
	}
	if ofs < 0 || ofs+int64(len(data)) > v.maxFileSize() {
		return 0, errors.Wrapf(types.ErrInvalidArgument, "write of %d bytes at %d", len(data), ofs)
	}

	size := int64(n.Len)
	if ofs > size {
		if _, err := v.writeRange(obj, size, nil, int(ofs-size)); err != nil {
			return 0, errors.Wrap(err, "failed to fill gap")
		}
		n.Len = uint32(ofs)
	}

	written, err := v.writeRange(obj, ofs, data, 0)
	if end := ofs + int64(written); end > int64(n.Len) {
		n.Len = uint32(end)
	}
	return written, err
}

// Read returns up to n bytes starting at ofs. Reading at or past the end
// of the file returns no data.
func (v *Volume) Read(obj *Object, ofs int64, n int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return nil, err
	}

	node, err := v.fileNode(obj)
	if err != nil {
		return nil, err
	}
	if ofs < 0 || n < 0 {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "read of %d bytes at %d", n, ofs)
	}
	size := int64(node.Len)
	if ofs >= size {
		return []byte{}, nil
	}
	if rest := size - ofs; int64(n) > rest {
		n = int(rest)
	}

	out := make([]byte, n)
	pg := v.pool.PageSize()
	done := 0
	for done < n {
		loc := v.locate(obj.Serial, ofs+int64(done))
		chunk := pg - loc.ofs
		if chunk > n-done {
			chunk = n - done
		}

		b, err := v.page(loc, obj.Parent)
		if err != nil {
			return out[:done], err
		}
		got := v.pool.Read(b, loc.ofs, out[done:done+chunk])
		if err := v.pool.Put(b); err != nil {
			return out[:done], err
		}
		if got < chunk {
			return out[:done+got], errors.Wrapf(types.ErrIO, "short page at offset %d", ofs+int64(done))
		}
		done += chunk
	}
	return out, nil
}

// Flush makes every written page of an object durable
func (v *Volume) Flush(obj *Object) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	if _, err := v.node(obj); err != nil {
		return err
	}
	if err := v.pool.FlushGroup(obj.Parent, obj.Serial); err != nil {
		return err
	}
	if obj.Type == types.ObjectFile {
		return v.pool.FlushGroupMatchParent(obj.Serial)
	}
	return nil
}

// FlushAll makes every written page of every object durable
func (v *Volume) FlushAll() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	return v.pool.FlushAll()
}

// Delete removes an object and erases its blocks. A directory must be
// empty. The serial is withheld from allocation until the blocks are gone.
func (v *Volume) Delete(obj *Object) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	return v.delete(obj)
}

func (v *Volume) delete(obj *Object) error {
	n, err := v.node(obj)
	if err != nil {
		return err
	}
	if obj.Serial == types.RootDirSerial && obj.Type == types.ObjectDir {
		return errors.Wrap(types.ErrInvalidArgument, "cannot delete the root directory")
	}
	if obj.Type == types.ObjectDir && len(v.tree.Children(obj.Serial)) > 0 {
		return errors.Wrapf(types.ErrDirNotEmpty, "directory %q", obj.Name)
	}

	v.tree.Suspend(obj.Serial)
	defer v.tree.Resume(obj.Serial)

	if obj.Type == types.ObjectFile {
		if err := v.pool.DiscardMatchParent(obj.Serial); err != nil {
			return err
		}
		for _, ext := range v.tree.DataExtents(obj.Serial) {
			v.release(ext)
		}
	}
	if err := v.pool.Discard(obj.Parent, obj.Serial); err != nil {
		return err
	}
	v.release(n)

	v.log.WithFields(logrus.Fields{"serial": obj.Serial, "name": obj.Name}).Debug("object deleted")
	return nil
}

// release unindexes an object node and erases its block
func (v *Volume) release(n *tree.Node) {
	block := n.Block
	v.tree.Remove(n)
	v.tree.Reclaim(v.dev, n, true)
	v.blocks.Invalidate(block)
}

func (v *Volume) entry(n *tree.Node) (FileEntry, error) {
	fi, err := v.loadInfo(n)
	if err != nil {
		return FileEntry{}, err
	}
	e := FileEntry{
		Name:        fi.Name,
		Serial:      n.Serial,
		Parent:      n.Parent,
		IsDirectory: n.Kind == tree.KindDir,
		Block:       uint32(n.Block),
		Attr:        fi.Attr,
		CreatedTime: time.Unix(int64(fi.CreateTime), 0).UTC(),
	}
	if n.Kind == tree.KindFile {
		e.Size = n.Len
		e.Extents = len(v.tree.DataExtents(n.Serial))
	}
	return e, nil
}

// ListDir lists the children of a directory sorted by name
func (v *Volume) ListDir(dir *Object) ([]FileEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return nil, err
	}
	return v.listDir(dir)
}

func (v *Volume) listDir(dir *Object) ([]FileEntry, error) {
	if dir == nil || dir.Type != types.ObjectDir {
		return nil, errors.Wrap(types.ErrInvalidArgument, "not a directory")
	}
	if _, err := v.node(dir); err != nil {
		return nil, err
	}

	children := v.tree.Children(dir.Serial)
	out := make([]FileEntry, 0, len(children))
	for _, c := range children {
		e, err := v.entry(c)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read entry serial %d", c.Serial)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Stat describes one object
func (v *Volume) Stat(obj *Object) (FileEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return FileEntry{}, err
	}
	n, err := v.node(obj)
	if err != nil {
		return FileEntry{}, err
	}
	return v.entry(n)
}
