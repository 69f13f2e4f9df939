package backup_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/ypeckstadt/cobra/internal/docker"
	"github.com/ypeckstadt/cobra/internal/hooks"
	"github.com/ypeckstadt/cobra/internal/models"
	"github.com/ypeckstadt/cobra/internal/storage"
)

func writeFiles(c *gc.C, dir string, files map[string]string) {
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		c.Assert(os.MkdirAll(filepath.Dir(p), 0755), jc.ErrorIsNil)
		c.Assert(os.WriteFile(p, []byte(body), 0644), jc.ErrorIsNil)
	}
}

func readFiles(c *gc.C, dir string) map[string]string {
	files := map[string]string{}
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		data, err := os.ReadFile(p)
		files[filepath.ToSlash(rel)] = string(data)
		return err
	})
	c.Assert(err, jc.ErrorIsNil)
	return files
}

// fakeEngine keeps volume content in directories under root and runs the
// helper container commands on the host.
type fakeEngine struct {
	root     string
	volumes  map[string]models.Volume
	created  []models.Volume
	runs     []docker.RunOptions
	calls    int
	metadata []byte
	runErr   error
}

func newFakeEngine(c *gc.C) *fakeEngine {
	return &fakeEngine{root: c.MkDir(), volumes: map[string]models.Volume{}}
}

func (e *fakeEngine) addVolume(c *gc.C, v models.Volume, files map[string]string) {
	e.volumes[v.Name] = v
	c.Assert(os.MkdirAll(e.volumePath(v.Name), 0755), jc.ErrorIsNil)
	writeFiles(c, e.volumePath(v.Name), files)
}

func (e *fakeEngine) dropVolume(c *gc.C, name string) {
	delete(e.volumes, name)
	c.Assert(os.RemoveAll(e.volumePath(name)), jc.ErrorIsNil)
}

func (e *fakeEngine) volumePath(name string) string {
	return filepath.Join(e.root, name)
}

func (e *fakeEngine) ListVolumes(context.Context) ([]models.Volume, error) {
	e.calls++
	var vols []models.Volume
	for _, v := range e.volumes {
		vols = append(vols, v)
	}
	sort.Slice(vols, func(i, j int) bool { return vols[i].Name < vols[j].Name })
	return vols, nil
}

func (e *fakeEngine) VolumeExists(_ context.Context, name string) (bool, error) {
	e.calls++
	_, ok := e.volumes[name]
	return ok, nil
}

func (e *fakeEngine) CreateVolume(_ context.Context, v models.Volume) error {
	e.calls++
	e.created = append(e.created, v)
	e.volumes[v.Name] = v
	return os.MkdirAll(e.volumePath(v.Name), 0755)
}

func (e *fakeEngine) Run(_ context.Context, opts docker.RunOptions) (string, error) {
	e.calls++
	e.runs = append(e.runs, opts)
	if e.runErr != nil {
		return "", e.runErr
	}

	mounts := map[string]string{}
	for _, b := range opts.Binds {
		parts := strings.Split(b, ":")
		src := parts[0]
		if !models.IsDir(src) {
			src = e.volumePath(src)
		}
		mounts[parts[1]] = src
	}

	fields := strings.Fields(opts.Cmd[2])
	switch fields[0] {
	case "mv":
		return e.tar(fields[2], mounts)
	case "cp":
		return e.copy(strings.TrimSuffix(fields[2], "/*"), fields[3], mounts)
	}
	return "", errors.Errorf("unexpected command %q", opts.Cmd[2])
}

// tar mimics "mv /backup/... <root> && tar -czvf /backup/<name>.tar.gz <root>".
func (e *fakeEngine) tar(root string, mounts map[string]string) (string, error) {
	name := strings.TrimPrefix(root, "/")
	backupDir := mounts["/backup"]

	var meta []byte
	var err error
	metaFile := filepath.Join(backupDir, "...")
	if meta, err = os.ReadFile(metaFile); err != nil {
		return "", err
	}
	if err := os.Remove(metaFile); err != nil {
		return "", err
	}
	e.metadata = meta

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	var out strings.Builder
	add := func(h *tar.Header, body []byte) error {
		out.WriteString(h.Name + "\n")
		if err := tw.WriteHeader(h); err != nil {
			return err
		}
		_, err := tw.Write(body)
		return err
	}

	if err := add(&tar.Header{Name: name + "/", Typeflag: tar.TypeDir, Mode: 0755}, nil); err != nil {
		return "", err
	}
	if err := add(&tar.Header{Name: name + "/...", Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(meta))}, meta); err != nil {
		return "", err
	}

	var binds []string
	for dst := range mounts {
		if strings.HasPrefix(dst, root+"/") {
			binds = append(binds, dst)
		}
	}
	sort.Strings(binds)
	for _, dst := range binds {
		host := mounts[dst]
		base := strings.TrimPrefix(dst, "/")
		err := filepath.Walk(host, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(host, p)
			entry := path.Join(base, filepath.ToSlash(rel))
			if info.IsDir() {
				return add(&tar.Header{Name: entry + "/", Typeflag: tar.TypeDir, Mode: 0755}, nil)
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			return add(&tar.Header{Name: entry, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(data))}, data)
		})
		if err != nil {
			return "", err
		}
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return out.String(), os.WriteFile(filepath.Join(backupDir, name+".tar.gz"), buf.Bytes(), 0644)
}

// copy mimics "cp -rf <src>/* <dst>".
func (e *fakeEngine) copy(src, dst string, mounts map[string]string) (string, error) {
	rel, _ := filepath.Rel("/backup", src)
	srcHost := filepath.Join(mounts["/backup"], rel)

	entries, err := os.ReadDir(srcHost)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.Name()[0] == '.' {
			continue
		}
		target, ok := mounts[path.Join(dst, entry.Name())]
		if !ok {
			continue
		}
		if err := copyTree(filepath.Join(srcHost, entry.Name()), target); err != nil {
			return "", err
		}
	}
	return "", nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, p)
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}

type hookCall struct {
	name hooks.Name
	args []hooks.Arg
}

type recordingHooks struct {
	calls []hookCall
	fail  hooks.Name
}

func (h *recordingHooks) Call(_ context.Context, name hooks.Name, args ...hooks.Arg) error {
	h.calls = append(h.calls, hookCall{name: name, args: args})
	if name == h.fail {
		return &hooks.Error{Name: name, Err: errors.New("boom")}
	}
	return nil
}

func (h *recordingHooks) names() []hooks.Name {
	var names []hooks.Name
	for _, call := range h.calls {
		names = append(names, call.name)
	}
	return names
}

// fakeRemote keeps uploaded files in memory.
type fakeRemote struct {
	calls   int
	opened  int
	closed  int
	files   []storage.File
	content map[string][]byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{content: map[string][]byte{}}
}

func (r *fakeRemote) open(context.Context, *storage.Config) (storage.Remote, error) {
	r.opened++
	return storage.WithCache(r), nil
}

func (r *fakeRemote) Upload(_ context.Context, localPath, _, remoteName string, progress storage.ProgressFunc) error {
	r.calls++
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	id := "id-" + remoteName
	r.content[id] = data
	r.files = append(r.files, storage.File{ID: id, Name: remoteName, Size: int64(len(data))})
	if progress != nil {
		progress(storage.Status{Name: remoteName, Current: int64(len(data)), Total: int64(len(data))})
	}
	return nil
}

func (r *fakeRemote) Download(_ context.Context, fileID, localDir string, useCache bool, progress storage.ProgressFunc) (string, error) {
	r.calls++
	data, ok := r.content[fileID]
	if !ok {
		return "", errors.NotFoundf("file %q", fileID)
	}
	name := strings.TrimPrefix(fileID, "id-")
	if progress != nil {
		progress(storage.Status{Name: name})
	}
	target := filepath.Join(localDir, name)
	return target, os.WriteFile(target, data, 0644)
}

func (r *fakeRemote) List(context.Context) ([]storage.File, error) {
	r.calls++
	return r.files, nil
}

func (r *fakeRemote) Close() error {
	r.closed++
	return nil
}
