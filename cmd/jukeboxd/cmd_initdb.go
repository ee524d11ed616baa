/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create or migrate the database schema",
	Long:  "Run migrations and seed the playback state row without starting the server",
	RunE:  runInitDB,
}

func init() {
	rootCmd.AddCommand(initdbCmd)
}

func runInitDB(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if _, err := initDatabase(); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	fmt.Println("database ready")
	return nil
}
