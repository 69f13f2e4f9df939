package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/juju/errors"

	"github.com/ypeckstadt/cobra/internal/models"
	"github.com/ypeckstadt/cobra/internal/storage"
)

const notAvailable = "n/a"

type listFormat struct {
	json  bool
	plain bool
	id    bool
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Trace(enc.Encode(v))
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func printVolumes(w io.Writer, volumes []models.Volume, asJSON bool) error {
	if asJSON {
		if volumes == nil {
			volumes = []models.Volume{}
		}
		return printJSON(w, volumes)
	}

	table := uitable.New()
	table.MaxColWidth = 50
	table.Wrap = true
	table.AddRow("NAME", "CREATED AT", "DRIVER", "MOUNTPOINT", "OPTIONS", "LABELS")
	for _, v := range volumes {
		options, _ := json.Marshal(v.Options)
		labels, _ := json.Marshal(v.Labels)
		table.AddRow(v.Name, orNA(v.CreatedAt), orNA(v.Driver), orNA(v.Mountpoint), string(options), string(labels))
	}
	_, err := fmt.Fprintln(w, table)
	return errors.Trace(err)
}

// printFiles prints a backup listing. Local files only have a name, so
// they are printed one per line unless json is requested.
func printFiles(w io.Writer, files []storage.File, remote bool, format listFormat) error {
	if format.json {
		if !remote {
			names := make([]string, 0, len(files))
			for _, f := range files {
				names = append(names, f.Name)
			}
			return printJSON(w, names)
		}
		if files == nil {
			files = []storage.File{}
		}
		return printJSON(w, files)
	}

	if !remote || format.plain {
		for _, f := range files {
			line := f.Name
			if remote && format.id {
				line = f.ID
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}

	table := uitable.New()
	table.MaxColWidth = 50
	table.AddRow("ID", "NAME", "CREATED AT", "SIZE", "MD5")
	for _, f := range files {
		size := notAvailable
		if f.Size > 0 {
			size = humanize.Bytes(uint64(f.Size))
		}
		table.AddRow(orNA(f.ID), orNA(f.Name), orNA(f.CreatedTime), size, orNA(f.MD5))
	}
	_, err := fmt.Fprintln(w, table)
	return errors.Trace(err)
}
