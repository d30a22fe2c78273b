// Package resource implements the path-indexed resource store that maps an entity type name to a directory of files.
package resource

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a resource does not exist
var ErrNotFound = errors.New("resource not found")

// Store is the interface of resource stores
type Store interface {
	// Open reads file filename of resource name
	Open(name string, filename string) ([]byte, error)
	// OpenJSON reads file filename of resource name and unmarshals it into v
	OpenJSON(name string, filename string, v interface{}) error
	// Exists returns if the resource has the file
	Exists(name string, filename string) bool
	// List returns sorted names of resources that have the file
	List(filename string) ([]string, error)
	// Resolve converts a path relative to the store root to an absolute path
	Resolve(relativePath string) string
}

// FileSystemStore is a resource store backed by one directory per resource
type FileSystemStore struct {
	directory string
}

// OpenDirectory opens a file system resource store rooted at directory
func OpenDirectory(directory string) (*FileSystemStore, error) {
	abs, err := filepath.Abs(directory)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", directory)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "open resource directory %s", abs)
	}
	if !st.IsDir() {
		return nil, errors.Errorf("%s is not a directory", abs)
	}
	return &FileSystemStore{directory: abs}, nil
}

func (fs *FileSystemStore) String() string {
	return "FileSystemStore<" + fs.directory + ">"
}

func (fs *FileSystemStore) getFilePath(name string, filename string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Errorf("invalid resource name: %q", name)
	}
	return filepath.Join(fs.directory, name, filename), nil
}

// Open reads file filename of resource name
//
// A missing file yields an error whose cause is ErrNotFound.
func (fs *FileSystemStore) Open(name string, filename string) ([]byte, error) {
	fpath, err := fs.getFilePath(name, filename)
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(fpath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s/%s", name, filename)
		}
		return nil, errors.Wrapf(err, "read %s", fpath)
	}
	return data, nil
}

// OpenJSON reads a JSON file of resource name into v
func (fs *FileSystemStore) OpenJSON(name string, filename string, v interface{}) error {
	data, err := fs.Open(name, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s/%s", name, filename)
	}
	return nil
}

// Exists returns if the resource has the file
func (fs *FileSystemStore) Exists(name string, filename string) bool {
	fpath, err := fs.getFilePath(name, filename)
	if err != nil {
		return false
	}
	_, err = os.Stat(fpath)
	return err == nil
}

// List returns sorted names of resources that have the file
func (fs *FileSystemStore) List(filename string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(fs.directory, "*", filename))
	if err != nil {
		return nil, err
	}
	res := make([]string, 0, len(files))
	for _, fpath := range files {
		dir, _ := filepath.Split(fpath)
		name := filepath.Base(dir)
		if name == "" || name == "." {
			gwlog.Errorf("invalid resource file: %s", fpath)
			continue
		}
		res = append(res, name)
	}
	sort.Strings(res)
	return res, nil
}

// Resolve converts a path relative to the store root to an absolute path
func (fs *FileSystemStore) Resolve(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		return filepath.Clean(relativePath)
	}
	return filepath.Join(fs.directory, filepath.FromSlash(relativePath))
}

// Directory returns the root directory of the store
func (fs *FileSystemStore) Directory() string {
	return fs.directory
}

// MemoryStore is an in-memory resource store keyed by "name/filename"
type MemoryStore struct {
	files map[string][]byte
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: map[string][]byte{}}
}

// Put stores the file content of resource name
func (ms *MemoryStore) Put(name string, filename string, data []byte) {
	ms.files[name+"/"+filename] = data
}

// PutJSON marshals v and stores it as file content of resource name
func (ms *MemoryStore) PutJSON(name string, filename string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ms.Put(name, filename, data)
	return nil
}

// Open reads file filename of resource name
func (ms *MemoryStore) Open(name string, filename string) ([]byte, error) {
	data, ok := ms.files[name+"/"+filename]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s/%s", name, filename)
	}
	return data, nil
}

// OpenJSON reads a JSON file of resource name into v
func (ms *MemoryStore) OpenJSON(name string, filename string, v interface{}) error {
	data, err := ms.Open(name, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s/%s", name, filename)
	}
	return nil
}

// Exists returns if the resource has the file
func (ms *MemoryStore) Exists(name string, filename string) bool {
	_, ok := ms.files[name+"/"+filename]
	return ok
}

// List returns sorted names of resources that have the file
func (ms *MemoryStore) List(filename string) ([]string, error) {
	suffix := "/" + filename
	var res []string
	for key := range ms.files {
		if strings.HasSuffix(key, suffix) {
			res = append(res, strings.TrimSuffix(key, suffix))
		}
	}
	sort.Strings(res)
	return res, nil
}

// Resolve returns the relative path unchanged
func (ms *MemoryStore) Resolve(relativePath string) string {
	return relativePath
}
