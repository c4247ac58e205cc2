// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config holds the panelctl settings loaded from panelctl.yaml.
//
// The file is optional: when it is missing, the NETPANEL_UPDATER_URL
// environment variable and built-in defaults apply instead.
type Config struct {
	// ServerURL is the base URL of the updater service.
	ServerURL string `yaml:"server_url"`
}

var config Config

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		configPath := "panelctl.yaml"
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			// No config file is fine; environment and defaults cover it.
			return
		}

		if err := yaml.Unmarshal(yamlFile, &config); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
	}
}

// serverURL resolves the updater base URL: flag, then config file, then
// environment, then the default local port.
func serverURL() string {
	if serverFlag != "" {
		return serverFlag
	}
	if config.ServerURL != "" {
		return config.ServerURL
	}
	if v := os.Getenv("NETPANEL_UPDATER_URL"); v != "" {
		return v
	}
	return "http://localhost:12215"
}
