package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/internal/model"
)

// render 在 --json 时输出 JSON，否则调用 text 输出表格。
func render[T any](w io.Writer, v T, text func(io.Writer, T) error) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w, v)
}

func printReport(w io.Writer, r *consistency.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Report:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Type:\t%s\n", r.CheckType)
	fmt.Fprintf(tw, "Checked at:\t%s (%dms)\n", r.CheckedAt.Format(time.RFC3339), r.DurationMs)
	fmt.Fprintf(tw, "Records:\t%d (skipped without path: %d)\n", r.DbRecordCount, r.SkippedRecords)
	fmt.Fprintf(tw, "Objects:\t%d\n", r.StorageFileCount)
	fmt.Fprintf(tw, "Valid:\t%d\n", r.ValidCount)
	fmt.Fprintf(tw, "Audit:\t%s\n", r.AuditStatus)
	if r.Partial {
		fmt.Fprintf(tw, "Partial:\tyes, skipped prefixes %v\n", r.SkippedPrefixes)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.OrphanedDbRecords) > 0 {
		fmt.Fprintf(w, "\nOrphaned records (%d):\n", len(r.OrphanedDbRecords))
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPATH\tSIZE\tCREATED")
		for _, o := range r.OrphanedDbRecords {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", o.ID, o.Name, o.StoragePath, o.Size, o.CreatedAt.Format(time.RFC3339))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(r.OrphanedStorageFiles) > 0 {
		fmt.Fprintf(w, "\nOrphaned objects (%d):\n", len(r.OrphanedStorageFiles))
		for _, p := range r.OrphanedStorageFiles {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	if r.OrphanCount() == 0 {
		fmt.Fprintln(w, "\nNo orphans found.")
	}
	return nil
}

func printRepair(w io.Writer, r consistency.RepairResult) error {
	fmt.Fprintf(w, "Repaired: %d, failed: %d\n", len(r.Success), len(r.Failed))
	if len(r.Failed) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tERROR")
	for _, f := range r.Failed {
		item := f.ID
		if item == "" {
			item = f.Path
		}
		fmt.Fprintf(tw, "%s\t%s\n", item, f.Error)
	}
	return tw.Flush()
}

func printLogs(w io.Writer, entries []model.ConsistencyLog) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No log entries.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tORPHANED RECORDS\tORPHANED FILES\tVALID\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			e.ID, e.CheckType, e.Status, e.OrphanedRecords, e.OrphanedFiles, e.ValidFiles, model.LocalTime(e.CreatedAt))
	}
	return tw.Flush()
}

func printFileCheck(w io.Writer, fc *consistency.FileCheck) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", fc.FileID)
	fmt.Fprintf(tw, "Record:\t%s\n", presence(fc.DbRecordExists))
	fmt.Fprintf(tw, "Object:\t%s\n", presence(fc.StorageObjectExists))
	if fc.StoragePath != "" {
		fmt.Fprintf(tw, "Path:\t%s\n", fc.StoragePath)
	}
	return tw.Flush()
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
