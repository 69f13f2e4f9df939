package metadata_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/ypeckstadt/cobra/internal/metadata"
	"github.com/ypeckstadt/cobra/internal/models"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

type metadataSuite struct{}

var _ = gc.Suite(&metadataSuite{})

func (s *metadataSuite) TestBackupNameUsesUTC(c *gc.C) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	t := time.Date(2000, 5, 5, 3, 1, 0, 0, loc)

	name := metadata.BackupName("backup", t)
	c.Check(name, gc.Equals, "backup@20000505.000100")
	c.Check(metadata.ArchiveName(name), gc.Equals, "backup@20000505.000100.tar.gz")
}

func (s *metadataSuite) TestTrimArchiveExt(c *gc.C) {
	c.Check(metadata.TrimArchiveExt("/cache/backup@20000505.000100.tar.gz"), gc.Equals, "backup@20000505.000100")
	c.Check(metadata.TrimArchiveExt("db@20230204.211624.tar.gz"), gc.Equals, "db@20230204.211624")
}

func (s *metadataSuite) TestParseBackupName(c *gc.C) {
	base, t, ok := metadata.ParseBackupName("nightly@20230204.211624.tar.gz")
	c.Assert(ok, jc.IsTrue)
	c.Check(base, gc.Equals, "nightly")
	c.Check(t.Equal(time.Date(2023, 2, 4, 21, 16, 24, 0, time.UTC)), jc.IsTrue)

	_, _, ok = metadata.ParseBackupName("random.tar.gz")
	c.Check(ok, jc.IsFalse)
}

func (s *metadataSuite) TestBuildAttachesVolumeAttributes(c *gc.C) {
	volumes := []models.Volume{{
		Name:    "vol1",
		Driver:  "local",
		Options: map[string]string{"a": "1"},
		Labels:  map[string]string{"b": "2"},
	}}
	mounts := metadata.VolumeMounts(volumes, "/backup@20000505.000100")
	mounts["/srv/data"] = models.Mount{Bind: "/backup@20000505.000100/data", Mode: models.ReadOnly}

	doc := metadata.Build(volumes, mounts)
	c.Check(doc, jc.DeepEquals, models.Document{
		"vol1": {
			Bind:    "/backup@20000505.000100/vol1",
			Mode:    models.ReadOnly,
			Driver:  "local",
			Options: map[string]string{"a": "1"},
			Labels:  map[string]string{"b": "2"},
		},
		"/srv/data": {
			Bind: "/backup@20000505.000100/data",
			Mode: models.ReadOnly,
		},
	})
}

func (s *metadataSuite) TestDirMountsDisambiguatesVolumeName(c *gc.C) {
	restore := metadata.PatchRandomSuffix(func() string { return "qwertyui" })
	defer restore()

	dir := filepath.Join(c.MkDir(), "vol1")
	c.Assert(os.Mkdir(dir, 0755), jc.ErrorIsNil)
	full, err := filepath.EvalSymlinks(dir)
	c.Assert(err, jc.ErrorIsNil)

	mounts, err := metadata.DirMounts([]string{dir}, []models.Volume{{Name: "vol1"}}, "/b@1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(mounts, jc.DeepEquals, models.Mounts{
		full: {Bind: "/b@1/vol1qwertyui", Mode: models.ReadOnly},
	})
}

func (s *metadataSuite) TestDirMountsKeepsDistinctNames(c *gc.C) {
	root := c.MkDir()
	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	c.Assert(os.Mkdir(a, 0755), jc.ErrorIsNil)
	c.Assert(os.Mkdir(b, 0755), jc.ErrorIsNil)

	mounts, err := metadata.DirMounts([]string{a, b}, []models.Volume{{Name: "vol1"}}, "/b@1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(mounts, gc.HasLen, 2)
	for src, m := range mounts {
		c.Check(m.Bind, gc.Equals, "/b@1/"+filepath.Base(src))
		c.Check(m.Mode, gc.Equals, models.ReadOnly)
	}
}

func (s *metadataSuite) TestDirMountsMissingDir(c *gc.C) {
	_, err := metadata.DirMounts([]string{filepath.Join(c.MkDir(), "nope")}, nil, "/b@1")
	c.Check(errors.Is(err, errors.NotFound), jc.IsTrue)
}

func (s *metadataSuite) TestWriteRead(c *gc.C) {
	file := filepath.Join(c.MkDir(), metadata.FileName)
	doc := models.Document{
		"vol1": {Bind: "/b@1/vol1", Mode: models.ReadOnly, Driver: "local"},
		"/etc/app": {Bind: "/b@1/app", Mode: models.ReadOnly},
	}
	c.Assert(metadata.Write(doc, file), jc.ErrorIsNil)

	got, err := metadata.Read(file)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got, jc.DeepEquals, doc)
}

func (s *metadataSuite) TestReadLegacyDocument(c *gc.C) {
	file := filepath.Join(c.MkDir(), metadata.FileName)
	legacy := `{"usb-stick": {"bind": "/backup@20230204.211624/usb-stick", "mode": "ro", "driver": "local",
		"options": {"device": "/dev/sda1", "type": "vfat"}, "labels": {"16gb": "asdf"}},
		"/home/q/work/cobra/examples": {"bind": "/backup@20230204.211624/examples", "mode": "ro"},
		"empty": {"bind": "/backup@20230204.211624/empty", "mode": "ro", "driver": "local", "options": null, "labels": null}}`
	c.Assert(os.WriteFile(file, []byte(legacy), 0644), jc.ErrorIsNil)

	doc, err := metadata.Read(file)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(doc["usb-stick"].Options, jc.DeepEquals, map[string]string{"device": "/dev/sda1", "type": "vfat"})
	c.Check(doc["usb-stick"].Driver, gc.Equals, "local")
	c.Check(doc["empty"].Options, gc.IsNil)
	c.Check(models.IsDir("/home/q/work/cobra/examples"), jc.IsTrue)
	c.Check(models.IsDir("usb-stick"), jc.IsFalse)
}

func (s *metadataSuite) TestReadMissing(c *gc.C) {
	_, err := metadata.Read(filepath.Join(c.MkDir(), metadata.FileName))
	c.Check(errors.Is(err, errors.NotFound), jc.IsTrue)
}

func (s *metadataSuite) TestReadMalformed(c *gc.C) {
	file := filepath.Join(c.MkDir(), metadata.FileName)
	c.Assert(os.WriteFile(file, []byte("{"), 0644), jc.ErrorIsNil)

	_, err := metadata.Read(file)
	c.Check(err, gc.ErrorMatches, `decoding metadata .*`)
}
