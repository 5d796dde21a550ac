package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"ekv/config"

	"github.com/docker/go-units"
)

func main() {
	var (
		path  string
		check string
	)
	flag.StringVar(&path, "config", "", "cluster configuration file; the built-in localhost cluster when empty")
	flag.StringVar(&check, "check", "", "-check d show directory state;-check s show storage server state")
	flag.Parse()

	cc := config.Default()
	if path != "" {
		var err error
		if cc, err = config.Load(path); err != nil {
			log.Fatal(err)
		}
	}

	switch check {
	case "d":
		PrintDirectory(cc.Directory)
	case "s":
		PrintStorage(cc.Storage)
	default:
		flag.Usage()
	}
}

func PrintDirectory(d config.Directory) {
	st := DirectoryState(d)
	fmt.Println("**************************")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Directory\tState\tBlocks\tAllocated\tFree\tLease")
	fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\n", d.ServiceAddr(), st.State,
		st.Stats.Total, st.Stats.Allocated, st.Stats.Free, st.Lease)
	w.Flush()
}

func PrintStorage(nodes []config.Storage) {
	gm := StorageState(nodes)
	fmt.Println("**************************")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Uuid\tBlock\tState\tPath\tSlots\tSize")
	uuids := make([]int64, 0, len(gm))
	for k := range gm {
		uuids = append(uuids, k)
	}
	sort.Slice(uuids, func(i, j int) bool { return uuids[i] < uuids[j] })
	for _, id := range uuids {
		st := gm[id]
		if len(st.Blocks) == 0 {
			fmt.Fprintf(w, "%v\t-\t%v\t\t\t\n", id, st.State)
			continue
		}
		for _, b := range st.Blocks {
			path := b.Path
			if path == "" {
				path = "-"
			}
			fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\n", id, b.Block, st.State, path, b.Slots,
				units.HumanSize(float64(b.Size)))
		}
	}
	w.Flush()
}
