package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/INLOpen/nexuslake/codec"
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/logstore"
	"github.com/INLOpen/nexuslake/server"
	"google.golang.org/protobuf/encoding/protojson"
)

func main() {
	var dir string
	var verbose bool
	flag.StringVar(&dir, "dir", "", "lake directory path")
	flag.BoolVar(&verbose, "v", false, "print every document")
	flag.Parse()
	if dir == "" {
		log.Fatal("provide -dir")
	}

	files, err := logstore.EnumerateDir(dir)
	if err != nil {
		log.Fatalf("failed to list %s: %v", dir, err)
	}
	fmt.Printf("Found %d log files\n", len(files))

	framed := codec.NewFramed[server.Document](server.DocumentMarshaler{})
	keys := make(map[string]int)
	total := 0
	for _, f := range files {
		var current server.Document
		decode := func(r codec.Reader) error {
			d, err := framed.Decode(r)
			if err != nil {
				return err
			}
			current = d
			return nil
		}
		result, err := logstore.ScanFile(context.Background(), f, decode, func(loc core.Location) error {
			keys[current.Key()]++
			if verbose {
				fmt.Printf("  %s key=%q %s\n", loc, current.Key(), protojson.Format(current.Fields))
			}
			return nil
		})
		total += result.Records

		state := "ok"
		switch {
		case err != nil:
			state = fmt.Sprintf("error: %v", err)
		case result.Truncated:
			state = fmt.Sprintf("truncated after offset %d", result.End)
		}
		fmt.Printf("%s: size=%d records=%d end=%d %s\n", core.FormatLogFileName(f.ID), f.Size, result.Records, result.End, state)
	}
	fmt.Printf("Total: %d records, %d distinct keys\n", total, len(keys))
}
