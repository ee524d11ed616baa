/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ImportResult summarizes a CSV import run.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportCSV loads catalog entries from a CSV export. The header row maps
// columns by name: "disc #" (or "position"), "artist", "album", and
// optionally "player", "year", "genre". Rows without an artist, album, or
// position are skipped. defaultPlayer applies to rows with no player column.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader, defaultPlayer int) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(record []string, names ...string) string {
		for _, name := range names {
			if i, ok := cols[name]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
		}
		return ""
	}

	result := &ImportResult{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		artist := field(record, "artist")
		album := field(record, "album")
		position, _ := strconv.Atoi(field(record, "disc #", "disc", "position"))
		if artist == "" || album == "" || position == 0 {
			result.Skipped++
			continue
		}

		player := defaultPlayer
		if v := field(record, "player"); v != "" {
			player, _ = strconv.Atoi(v)
		}
		year, _ := strconv.Atoi(field(record, "year"))

		_, err = s.UpsertDisc(ctx, player, position, DiscUpsert{
			Artist: artist,
			Album:  album,
			Year:   year,
			Genre:  field(record, "genre"),
		})
		if err != nil {
			s.logger.Warn().Err(err).Int("line", line).Msg("csv row not imported")
			result.Skipped++
			continue
		}
		result.Imported++
	}

	s.logger.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("csv import finished")
	return result, nil
}
