/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slinkd/jukebox/internal/catalog"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the disc catalog from a CSV file",
	Long:  "Import catalog entries from a CSV export with Disc #, Artist, Album, and optional Player, Year, and Genre columns",
	RunE:  runImport,
}

var (
	importCSVPath string
	importPlayer  int
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "Path to the CSV file (required)")
	importCmd.Flags().IntVar(&importPlayer, "player", 1, "Player for rows without a player column (1 or 2)")
	importCmd.MarkFlagRequired("csv")
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if importPlayer != 1 && importPlayer != 2 {
		return fmt.Errorf("--player must be 1 or 2, got %d", importPlayer)
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	f, err := os.Open(importCSVPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	cat := catalog.New(database, logger)
	result, err := cat.ImportCSV(cmd.Context(), f, importPlayer)
	if err != nil {
		return fmt.Errorf("import csv: %w", err)
	}

	fmt.Printf("imported %d discs, skipped %d rows\n", result.Imported, result.Skipped)
	return nil
}
