package services

import (
	"path"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/deploymenttheory/go-uffs/internal/types"
)

// splitPath cleans an absolute or relative slash separated path into its
// components. The root is an empty slice.
func splitPath(p string) []string {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(clean, "/"), "/")
}

// resolve walks a path from the root. Every component but the last must be
// a directory.
func (v *Volume) resolve(p string) (*Object, error) {
	obj := v.Root()
	for _, name := range splitPath(p) {
		if !obj.IsDir() {
			return nil, errors.Wrapf(types.ErrObjectNotFound, "%s: %q is not a directory", p, obj.Name)
		}
		n, err := v.lookup(obj.Serial, name)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, errors.Wrapf(types.ErrObjectNotFound, "%s", p)
		}
		obj = &Object{Type: n.Kind.ObjectType(), Parent: obj.Serial, Serial: n.Serial, Name: name}
	}
	return obj, nil
}

// resolveParent returns the directory holding the last component of a path
// and that component's name
func (v *Volume) resolveParent(p string) (*Object, string, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return nil, "", errors.Wrap(types.ErrInvalidArgument, "path names the root directory")
	}
	dir, err := v.resolve(strings.Join(parts[:len(parts)-1], "/"))
	if err != nil {
		return nil, "", err
	}
	if !dir.IsDir() {
		return nil, "", errors.Wrapf(types.ErrObjectNotFound, "%s: parent is not a directory", p)
	}
	return dir, parts[len(parts)-1], nil
}

// Lookup resolves a path to an object handle
func (v *Volume) Lookup(p string) (*Object, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return nil, err
	}
	return v.resolve(p)
}

// Mkdir creates a directory. Its parent must exist.
func (v *Volume) Mkdir(p string) (*Object, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return nil, err
	}
	dir, name, err := v.resolveParent(p)
	if err != nil {
		return nil, err
	}
	return v.openOrCreate(dir.Serial, name, types.ObjectDir, types.OpenCreate|types.OpenExcl)
}

// ListDirectory lists a directory by path, filling in each entry's path
func (v *Volume) ListDirectory(p string) ([]FileEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return nil, err
	}
	dir, err := v.resolve(p)
	if err != nil {
		return nil, err
	}
	entries, err := v.listDir(dir)
	if err != nil {
		return nil, err
	}
	base := "/" + strings.Join(splitPath(p), "/")
	for i := range entries {
		entries[i].Path = path.Join(base, entries[i].Name)
	}
	return entries, nil
}

// ReadFile returns the whole content of a file
func (v *Volume) ReadFile(p string) ([]byte, error) {
	obj, err := v.Lookup(p)
	if err != nil {
		return nil, err
	}
	st, err := v.Stat(obj)
	if err != nil {
		return nil, err
	}
	if st.IsDirectory {
		return nil, errors.Wrapf(types.ErrInvalidArgument, "%s is a directory", p)
	}
	return v.Read(obj, 0, int(st.Size))
}

// WriteFile creates or overwrites a file from offset 0 and flushes it.
// Existing content past len(data) is kept.
func (v *Volume) WriteFile(p string, data []byte) error {
	v.mu.Lock()
	var dir *Object
	var name string
	err := v.check()
	if err == nil {
		dir, name, err = v.resolveParent(p)
	}
	var obj *Object
	if err == nil {
		obj, err = v.openOrCreate(dir.Serial, name, types.ObjectFile, types.OpenCreate)
	}
	v.mu.Unlock()
	if err != nil {
		return err
	}

	if _, err := v.Write(obj, 0, data); err != nil {
		return err
	}
	return v.Flush(obj)
}

// Remove deletes a file or an empty directory by path
func (v *Volume) Remove(p string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.check(); err != nil {
		return err
	}
	obj, err := v.resolve(p)
	if err != nil {
		return err
	}
	return v.delete(obj)
}
