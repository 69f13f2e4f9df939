package storage_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	jc "github.com/juju/testing/checkers"
	"google.golang.org/api/option"
	gc "gopkg.in/check.v1"

	"github.com/ypeckstadt/cobra/internal/storage"
)

type driveFile struct {
	name string
	data string
}

// fakeDrive serves the subset of the Drive v3 API the remote uses.
type fakeDrive struct {
	calls   int
	files   map[string]driveFile
	uploads []string
	ranges  []string
	query   listQuery
}

type listQuery struct {
	q, orderBy, corpora string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls++
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload/drive/v3/files":
		body, _ := io.ReadAll(r.Body)
		f.uploads = append(f.uploads, string(body))
		fmt.Fprint(w, `{"id":"new1"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/files":
		v := r.URL.Query()
		f.query = listQuery{q: v.Get("q"), orderBy: v.Get("orderBy"), corpora: v.Get("corpora")}
		fmt.Fprint(w, `{"files":[
			{"id":"a","name":"backup@20000505.000100.tar.gz","createdTime":"2000-05-05T00:01:03Z","size":"5","md5Checksum":"x"},
			{"id":"b","name":"backup@20000506.000100.tar.gz","createdTime":"2000-05-06T00:01:03Z","size":"7"}]}`)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/files/"):
		id := strings.TrimPrefix(r.URL.Path, "/files/")
		file, ok := f.files[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":404,"message":"File not found"}}`)
			return
		}
		if r.URL.Query().Get("alt") != "media" {
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id": id, "name": file.name, "size": fmt.Sprint(len(file.data)),
			})
			return
		}
		rng := r.Header.Get("Range")
		f.ranges = append(f.ranges, rng)
		var start, end int
		_, _ = fmt.Sscanf(rng, "bytes=%d-%d", &start, &end)
		w.Header().Set("Content-Type", "application/gzip")
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprint(w, file.data[start:end+1])
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

type driveSuite struct {
	fake   *fakeDrive
	server *httptest.Server
	remote *storage.DriveRemote
}

var _ = gc.Suite(&driveSuite{})

func (s *driveSuite) SetUpTest(c *gc.C) {
	s.fake = &fakeDrive{files: map[string]driveFile{
		"a": {name: "backup@20000505.000100.tar.gz", data: "hello"},
	}}
	s.server = httptest.NewServer(s.fake)
	remote, err := storage.NewDriveRemote(context.Background(), "folder1",
		option.WithEndpoint(s.server.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(s.server.Client()),
	)
	c.Assert(err, jc.ErrorIsNil)
	s.remote = remote
}

func (s *driveSuite) TearDownTest(c *gc.C) {
	s.server.Close()
}

func (s *driveSuite) TestList(c *gc.C) {
	files, err := s.remote.List(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(files, jc.DeepEquals, []storage.File{
		{ID: "a", Name: "backup@20000505.000100.tar.gz", CreatedTime: "2000-05-05T00:01:03Z", Size: 5, MD5: "x"},
		{ID: "b", Name: "backup@20000506.000100.tar.gz", CreatedTime: "2000-05-06T00:01:03Z", Size: 7},
	})
	c.Check(s.fake.query, jc.DeepEquals, listQuery{q: "'folder1' in parents", orderBy: "createdTime", corpora: "allDrives"})
}

func (s *driveSuite) TestDownload(c *gc.C) {
	dir := c.MkDir()
	var statuses []storage.Status
	path, err := s.remote.Download(context.Background(), "a", dir, true, func(st storage.Status) {
		statuses = append(statuses, st)
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(path, gc.Equals, filepath.Join(dir, "backup@20000505.000100.tar.gz"))

	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "hello")
	c.Check(s.fake.ranges, jc.DeepEquals, []string{"bytes=0-4"})

	c.Assert(len(statuses) >= 2, jc.IsTrue)
	c.Check(statuses[0], jc.DeepEquals, storage.Status{Name: "backup@20000505.000100.tar.gz", Total: 5})
	c.Check(statuses[len(statuses)-1].Fraction(), gc.Equals, 1.0)
}

func (s *driveSuite) TestDownloadCachedByName(c *gc.C) {
	dir := c.MkDir()
	target := filepath.Join(dir, "backup@20000505.000100.tar.gz")
	c.Assert(os.WriteFile(target, []byte("old"), 0644), jc.ErrorIsNil)

	path, err := s.remote.Download(context.Background(), "a", dir, true, nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(path, gc.Equals, target)
	c.Check(s.fake.ranges, gc.HasLen, 0)

	path, err = s.remote.Download(context.Background(), "a", dir, false, nil)
	c.Assert(err, jc.ErrorIsNil)
	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "hello")
}

func (s *driveSuite) TestDownloadMissing(c *gc.C) {
	_, err := s.remote.Download(context.Background(), "zzz", c.MkDir(), true, nil)
	c.Check(err, gc.ErrorMatches, `(?s)getting file "zzz": .*File not found.*`)
}

func (s *driveSuite) TestUpload(c *gc.C) {
	file := filepath.Join(c.MkDir(), "backup@20000505.000100.tar.gz")
	c.Assert(os.WriteFile(file, []byte("archive-bytes"), 0644), jc.ErrorIsNil)

	var last storage.Status
	err := s.remote.Upload(context.Background(), file, storage.MimeType, "backup@20000505.000100.tar.gz", func(st storage.Status) {
		last = st
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.fake.uploads, gc.HasLen, 1)
	c.Check(s.fake.uploads[0], jc.Contains, "archive-bytes")
	c.Check(s.fake.uploads[0], jc.Contains, `"parents":["folder1"]`)
	c.Check(last.Fraction(), gc.Equals, 1.0)
}
