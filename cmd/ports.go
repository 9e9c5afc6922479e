// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/scanstat/pkg/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and supported baud rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
		} else {
			fmt.Println("Serial ports:")
			for _, p := range ports {
				fmt.Printf("  %s\n", p)
			}
		}

		fmt.Print("Baud rates:  ")
		for i, b := range transport.StandardBaudRates {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Print(b)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
