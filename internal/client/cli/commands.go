package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/contentup/internal/upload"
)

func (a *App) Checksum(ctx context.Context, path string) error {
	rec, err := a.uploads.Prepare(ctx, path)
	if err != nil {
		return err
	}
	defer rec.Source.Close()

	fmt.Fprintf(a.out, "%s  %s (%s)\n", rec.Checksum, rec.Path, humanBytes(rec.Size))
	return nil
}

func (a *App) Plan(ctx context.Context, path string) error {
	rec, err := a.uploads.Prepare(ctx, path)
	if err != nil {
		return err
	}
	defer rec.Source.Close()

	fmt.Fprintf(a.out, "%s: %s in %d chunks of %s, sha256 %s\n",
		rec.Path, humanBytes(rec.Size), len(rec.Chunks), humanBytes(rec.ChunkSize), rec.Checksum)
	for i, c := range rec.Chunks {
		fmt.Fprintf(a.out, "%6d  [%d, %d)  %s\n", i, c.Start, c.End, humanBytes(c.Len()))
	}
	return nil
}

func (a *App) Upload(ctx context.Context, path string) error {
	ctx, stop := interruptible(ctx)
	defer stop()

	p := newProgressPrinter(a.out, a.terminal)
	res, err := a.uploads.Upload(ctx, path, p.Update)
	p.Done()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Uploaded %s as %s (record %s)\n", path, res.ObjectKey, res.RecordID)
	return nil
}

func (a *App) Resume(ctx context.Context, id string) error {
	ctx, stop := interruptible(ctx)
	defer stop()

	p := newProgressPrinter(a.out, a.terminal)
	res, err := a.uploads.Resume(ctx, id, p.Update)
	p.Done()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Uploaded record %s as %s\n", res.RecordID, res.ObjectKey)
	return nil
}

func (a *App) Status(ctx context.Context, id string) error {
	rec, err := a.uploads.Status(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, formatRecord(rec))
	fmt.Fprintf(a.out, "  path:     %s\n  sha256:   %s\n  remote:   %s\n  created:  %s\n",
		rec.Path, rec.Checksum, orDash(rec.RemoteID), rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if rec.Error != "" {
		fmt.Fprintf(a.out, "  error:    %s\n", rec.Error)
	}
	return nil
}

func (a *App) List(ctx context.Context) error {
	recs, err := a.uploads.List(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No uploads")
		return nil
	}

	for _, rec := range recs {
		fmt.Fprintln(a.out, formatRecord(rec))
	}
	return nil
}

func state(rec *upload.Record) string {
	switch {
	case rec.Completed:
		return "completed"
	case rec.Failed:
		return "failed"
	default:
		return "unfinished"
	}
}

// formatRecord renders one line: id, state, chunk and byte progress, file name.
func formatRecord(rec *upload.Record) string {
	var doneChunks int
	var doneBytes int64
	for _, c := range rec.Chunks {
		if c.Completed {
			doneChunks++
			doneBytes += c.Len()
		}
	}
	return fmt.Sprintf("%s  %-10s  %d/%d chunks  %s/%s  %s",
		rec.ID, state(rec), doneChunks, len(rec.Chunks), humanBytes(doneBytes), humanBytes(rec.Size), rec.Path)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
