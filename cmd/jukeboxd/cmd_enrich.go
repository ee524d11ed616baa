/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slinkd/jukebox/internal/catalog"
	"github.com/slinkd/jukebox/internal/enrich"
	"github.com/slinkd/jukebox/internal/events"
	"github.com/slinkd/jukebox/internal/musicbrainz"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fetch MusicBrainz metadata and cover art for the catalog",
	Long:  "Look up releases on MusicBrainz for discs missing metadata, store track listings, and download cover art",
	RunE:  runEnrich,
}

var (
	enrichAll    bool
	enrichForce  bool
	enrichPlayer int
	enrichDisc   string
)

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().BoolVar(&enrichAll, "all", false, "Enrich every disc that needs it")
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "Re-enrich discs that already have metadata")
	enrichCmd.Flags().IntVar(&enrichPlayer, "player", 0, "Limit the sweep to one player (1 or 2)")
	enrichCmd.Flags().StringVar(&enrichDisc, "disc", "", "Enrich a single slot, formatted player:position (e.g. 1:42)")
}

func parseSlot(s string) (player, position int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("slot must be player:position, got %q", s)
	}
	player, err = strconv.Atoi(parts[0])
	if err != nil || (player != 1 && player != 2) {
		return 0, 0, fmt.Errorf("player must be 1 or 2, got %q", parts[0])
	}
	position, err = strconv.Atoi(parts[1])
	if err != nil || position < 1 || position > 300 {
		return 0, 0, fmt.Errorf("position must be within 1-300, got %q", parts[1])
	}
	return player, position, nil
}

func runEnrich(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if !enrichAll && enrichDisc == "" {
		return fmt.Errorf("either --all or --disc is required")
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	cat := catalog.New(database, logger)
	mb := musicbrainz.New(cfg.MusicBrainzUserAgent, cfg.MusicBrainzRateLimit, logger)
	enricher := enrich.New(cat, mb, events.NewBus(), cfg.CoversDir, logger)

	if enrichDisc != "" {
		player, position, err := parseSlot(enrichDisc)
		if err != nil {
			return err
		}
		disc, err := enricher.EnrichDisc(cmd.Context(), player, position, enrich.Options{Force: enrichForce})
		if err != nil {
			return fmt.Errorf("enrich %s: %w", enrichDisc, err)
		}
		fmt.Printf("enriched %d:%d - %s / %s (%d tracks)\n", player, position, disc.Artist, disc.Album, disc.TrackCount)
		return nil
	}

	result, err := enricher.EnrichAll(cmd.Context(), enrichPlayer, enrichForce)
	if err != nil {
		return fmt.Errorf("enrich all: %w", err)
	}
	fmt.Printf("enriched %d discs, skipped %d, failed %d\n", result.Enriched, result.Skipped, result.Failed)
	return nil
}
