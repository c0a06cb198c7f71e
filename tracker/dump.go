// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// DumpHeader is the header row of the diagnostics dump.
var DumpHeader = []string{
	"Message ID",
	"Message Header",
	"Destination",
	"Message status",
	"Slot Info",
	"Timestamp",
	"Expiration time",
	"NumOfScheduledDeliveries",
	"Channels sent",
}

const (
	historySeparator  = ">>"
	deliverySeparator = " : "
)

// Dump writes one CSV row per tracked message, ordered by message id, after
// a header row. Timestamps are Unix milliseconds; a zero expiration time is
// written as 0. Dumping only reads tracking state.
func (t *Tracker) Dump(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DumpHeader); err != nil {
		return fmt.Errorf("failed to write dump header: %w", err)
	}

	for _, rec := range t.registry.Snapshot() {
		if err := cw.Write(dumpRow(rec)); err != nil {
			return fmt.Errorf("failed to write dump row for message %d: %w", rec.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush dump: %w", err)
	}
	return nil
}

// DumpToFile writes the diagnostics dump to a file, creating its directory
// if needed. Paths ending in ".zst" are zstd compressed.
func (t *Tracker) DumpToFile(path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close dump file: %w", cerr)
		}
	}()

	if !strings.HasSuffix(path, ".zst") {
		err = t.Dump(f)
	} else {
		err = t.dumpCompressed(f)
	}
	if err != nil {
		t.logger.Error("failed to dump message status",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return err
	}

	t.logger.Info("message status dumped",
		slog.String("path", path),
		slog.Int("messages", t.registry.Len()))
	return nil
}

func (t *Tracker) dumpCompressed(w io.Writer) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if err := t.Dump(enc); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish compressed dump: %w", err)
	}
	return nil
}

func dumpRow(rec *Record) []string {
	history := rec.History()
	statuses := make([]string, len(history))
	for i, s := range history {
		statuses[i] = s.String()
	}

	deliveries := rec.ChannelDeliveries()
	channels := make([]string, len(deliveries))
	for i, d := range deliveries {
		channels[i] = d.ChannelID.String() + " >> " + strconv.Itoa(d.Count)
	}

	return []string{
		strconv.FormatInt(rec.ID, 10),
		"",
		rec.Destination,
		strings.Join(statuses, historySeparator),
		rec.Slot.String(),
		strconv.FormatInt(millis(rec.Timestamp()), 10),
		strconv.FormatInt(millis(rec.ExpiresAt), 10),
		strconv.FormatInt(rec.Scheduled(), 10),
		strings.Join(channels, deliverySeparator),
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
