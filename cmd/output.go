package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/index"
	"github.com/sells-group/airgrid/internal/store"
	"github.com/sells-group/airgrid/internal/transit"
)

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatIngestResult(out io.Writer, res *index.IngestResult) {
	fmt.Fprintf(out, "Files:    %d\n", res.Files)
	fmt.Fprintf(out, "Datasets: %d\n", res.Datasets)
	fmt.Fprintf(out, "Records:  %d\n", res.Records)
	fmt.Fprintf(out, "Filtered: %d\n", res.Filtered)
	fmt.Fprintf(out, "Elapsed:  %s\n", res.Elapsed.Round(time.Millisecond))
	if len(res.Failures) == 0 {
		return
	}
	fmt.Fprintf(out, "\nFailures (%d):\n", len(res.Failures))
	for _, f := range res.Failures {
		fmt.Fprintf(out, "  %s: %s\n", f.Path, f.Error)
	}
}

func formatIndex(out io.Writer, idx *index.Index) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tYEAR\tPOLLUTANT\tRECORDS\tDERIVED")
	for _, k := range idx.Keys() {
		ds, ok := idx.Get(k.Entity, k.Year, k.Pollutant)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", k.Entity, k.Year, k.Pollutant, ds.Len(), ds.Derived)
	}
	if ds, ok := idx.Transit(); ok {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", index.TransitEntity, ds.Year, ds.Pollutant, ds.Len(), false)
	}
	w.Flush() //nolint:errcheck
}

func formatStored(out io.Writer, infos []store.DatasetInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tYEAR\tPOLLUTANT\tRECORDS\tDERIVED\tUPDATED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n",
			info.Entity, info.Year, info.Pollutant, info.Records, info.Derived,
			info.UpdatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush() //nolint:errcheck
}

func formatLines(out io.Writer, lines []transit.Line) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tSTATIONS\tFROM\tTO")
	for _, l := range lines {
		stations := l.Stations()
		if len(stations) == 0 {
			fmt.Fprintf(w, "%s\t0\t-\t-\n", l.Name)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", l.Name, len(stations), stations[0], stations[len(stations)-1])
	}
	w.Flush() //nolint:errcheck
}

func formatValue(v grid.Value) string {
	if f, ok := v.Get(); ok {
		return fmt.Sprintf("%.2f", f)
	}
	return "missing"
}
