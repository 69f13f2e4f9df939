package storage_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	"google.golang.org/api/option"
	gc "gopkg.in/check.v1"

	"github.com/ypeckstadt/cobra/internal/storage"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

type configSuite struct{}

var _ = gc.Suite(&configSuite{})

func (s *configSuite) TestValidateOrder(c *gc.C) {
	creds := filepath.Join(c.MkDir(), "creds.json")
	c.Assert(os.WriteFile(creds, []byte("{}"), 0600), jc.ErrorIsNil)

	for i, t := range []struct {
		cfg      storage.Config
		fileID   string
		notValid bool
		notFound bool
	}{
		{cfg: storage.Config{Folder: "f"}, notValid: true},
		{cfg: storage.Config{Credentials: creds}, notValid: true},
		{cfg: storage.Config{Credentials: "/nope.json"}, notValid: true},
		{cfg: storage.Config{Credentials: "/nope.json", Folder: "f"}, notFound: true},
		{cfg: storage.Config{Credentials: creds, Folder: "f"}},
		{cfg: storage.Config{Type: storage.TypeLocal, Folder: "/srv/backups"}},
	} {
		c.Logf("test %d", i)
		err := t.cfg.Validate()
		c.Check(errors.Is(err, errors.NotValid), gc.Equals, t.notValid)
		c.Check(errors.Is(err, errors.NotFound), gc.Equals, t.notFound)
		if !t.notValid && !t.notFound {
			c.Check(err, jc.ErrorIsNil)
		}
	}
}

func (s *configSuite) TestValidateFile(c *gc.C) {
	cfg := storage.Config{Credentials: "/nope.json"}
	c.Check(errors.Is(cfg.ValidateFile(""), errors.NotValid), jc.IsTrue)
	c.Check(errors.Is(cfg.ValidateFile("id"), errors.NotFound), jc.IsTrue)

	cfg = storage.Config{Folder: "f"}
	c.Check(cfg.ValidateFile("id"), gc.ErrorMatches, `missing credentials file \(--creds\) not valid`)
}

func (s *configSuite) TestOpenUnknownType(c *gc.C) {
	_, err := storage.Open(context.Background(), &storage.Config{Type: "ftp"})
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
}

func (s *configSuite) TestFraction(c *gc.C) {
	c.Check(storage.Status{}.Fraction(), gc.Equals, 0.0)
	c.Check(storage.Status{Current: 5, Total: 10}.Fraction(), gc.Equals, 0.5)
	c.Check(storage.Status{Current: 11, Total: 10}.Fraction(), gc.Equals, 1.0)
}

type localSuite struct {
	folder string
	remote storage.Remote
}

var _ = gc.Suite(&localSuite{})

func (s *localSuite) SetUpTest(c *gc.C) {
	s.folder = filepath.Join(c.MkDir(), "remote")
	remote, err := storage.Open(context.Background(), &storage.Config{Type: storage.TypeLocal, Folder: s.folder})
	c.Assert(err, jc.ErrorIsNil)
	s.remote = remote
}

func (s *localSuite) TestUploadListDownload(c *gc.C) {
	src := filepath.Join(c.MkDir(), "backup@20000505.000100.tar.gz")
	c.Assert(os.WriteFile(src, []byte("hello"), 0644), jc.ErrorIsNil)

	ctx := context.Background()
	c.Assert(s.remote.Upload(ctx, src, storage.MimeType, "backup@20000505.000100.tar.gz", nil), jc.ErrorIsNil)

	files, err := s.remote.List(ctx)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(files, gc.HasLen, 1)
	c.Check(files[0].ID, gc.Equals, "backup@20000505.000100.tar.gz")
	c.Check(files[0].Size, gc.Equals, int64(5))
	c.Check(files[0].MD5, gc.Equals, "5d41402abc4b2a76b9719d911017c592")

	cache := c.MkDir()
	path, err := s.remote.Download(ctx, files[0].ID, cache, true, nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(path, gc.Equals, filepath.Join(cache, "backup@20000505.000100.tar.gz"))
	c.Check(filepath.Join(cache, storage.IndexFile), jc.IsNonEmptyFile)
}

func (s *localSuite) TestDownloadMissing(c *gc.C) {
	_, err := s.remote.Download(context.Background(), "nope.tar.gz", c.MkDir(), true, nil)
	c.Check(errors.Is(err, errors.NotFound), jc.IsTrue)
}

type cacheSuite struct{}

var _ = gc.Suite(&cacheSuite{})

func (s *cacheSuite) TestIndex(c *gc.C) {
	dir := c.MkDir()
	idx := storage.LoadCacheIndex(dir)
	_, ok := idx.Lookup("a")
	c.Check(ok, jc.IsFalse)

	c.Assert(idx.Record("a", "backup@20000505.000100.tar.gz"), jc.ErrorIsNil)
	_, ok = storage.LoadCacheIndex(dir).Lookup("a")
	c.Check(ok, jc.IsFalse, gc.Commentf("recorded file is not present"))

	target := filepath.Join(dir, "backup@20000505.000100.tar.gz")
	c.Assert(os.WriteFile(target, nil, 0644), jc.ErrorIsNil)
	path, ok := storage.LoadCacheIndex(dir).Lookup("a")
	c.Check(ok, jc.IsTrue)
	c.Check(path, gc.Equals, target)
}

func (s *cacheSuite) TestCorruptIndexIsEmpty(c *gc.C) {
	dir := c.MkDir()
	c.Assert(os.WriteFile(filepath.Join(dir, storage.IndexFile), []byte("{"), 0644), jc.ErrorIsNil)
	c.Check(storage.LoadCacheIndex(dir).Entries, gc.HasLen, 0)
}

// A cached pull of an opaque Drive id makes no request once the index
// knows the name.
func (s *cacheSuite) TestCachedDriveDownloadMakesNoCalls(c *gc.C) {
	fake := &fakeDrive{files: map[string]driveFile{"a": {name: "backup@20000505.000100.tar.gz", data: "hello"}}}
	server := httptest.NewServer(fake)
	defer server.Close()

	drive, err := storage.NewDriveRemote(context.Background(), "folder1",
		option.WithEndpoint(server.URL+"/"), option.WithoutAuthentication())
	c.Assert(err, jc.ErrorIsNil)
	remote := storage.WithCache(drive)

	dir := c.MkDir()
	first, err := remote.Download(context.Background(), "a", dir, true, nil)
	c.Assert(err, jc.ErrorIsNil)
	fake.calls = 0

	var statuses []storage.Status
	second, err := remote.Download(context.Background(), "a", dir, true, func(st storage.Status) {
		statuses = append(statuses, st)
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(second, gc.Equals, first)
	c.Check(fake.calls, gc.Equals, 0)
	c.Check(statuses, jc.DeepEquals, []storage.Status{{Name: "backup@20000505.000100.tar.gz"}})
}

func (s *configSuite) TestLoadS3Key(c *gc.C) {
	dir := c.MkDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		c.Assert(os.WriteFile(p, []byte(body), 0600), jc.ErrorIsNil)
		return p
	}

	key, err := storage.LoadS3Key(write("good.json", `{"access_key_id": "AK", "secret_access_key": "SK", "endpoint": "http://minio:9000"}`))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(key, jc.DeepEquals, &storage.S3Key{AccessKeyID: "AK", SecretAccessKey: "SK", Endpoint: "http://minio:9000"})

	_, err = storage.LoadS3Key(write("partial.json", `{"access_key_id": "AK"}`))
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)

	_, err = storage.LoadS3Key(write("broken.json", `{`))
	c.Check(errors.Is(err, errors.NotValid), jc.IsTrue)
}
