package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/s0up4200/go-udfvol/internal/util"
	"github.com/s0up4200/go-udfvol/pkg/udfvol"
)

const timeLayout = "2006-01-02 15:04:05 -0700"

func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case "text", "":
		return false, nil
	}
	return true, fmt.Errorf("unknown output format %q", format)
}

func writeEntries(w io.Writer, format string, entries []udfvol.Entry) error {
	if entries == nil {
		entries = []udfvol.Entry{}
	}
	if done, err := encode(w, format, entries); done {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		size := util.FormatFileSize(float64(e.Size), true)
		kind := "-"
		if e.Directory {
			size = ""
			kind = "d"
		} else if e.Embedded {
			kind = "e"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kind, size, e.ModTime.Format(timeLayout), e.Path)
	}
	return tw.Flush()
}

func writeInfo(w io.Writer, format string, info udfvol.Info) error {
	if done, err := encode(w, format, info); done {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := []struct {
		name  string
		value any
	}{
		{"Label", info.Label},
		{"Volume set", info.VolumeSetID},
		{"Block size", info.BlockSize},
		{"Blocks", info.Blocks},
		{"Size", util.FormatFileSize(float64(info.Blocks)*float64(info.BlockSize), true)},
		{"Partition", fmt.Sprintf("%d+%d", info.PartitionStart, info.PartitionLength)},
		{"Files", info.Files},
		{"Directories", info.Directories},
		{"Free blocks", info.FreeBlocks},
		{"Next unique ID", info.NextUniqueID},
		{"Recorded", info.Recorded.Format(time.RFC3339)},
		{"Implementation", info.Implementation},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%v\n", r.name, r.value)
	}
	return tw.Flush()
}
