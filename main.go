// Package main provides the entry point for MDPSim.
// MDPSim is a cycle-level memory-dependence predictor simulator.
//
// For the full CLI, use: go run ./cmd/mdpsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("MDPSim - Memory Dependence Predictor Simulator")
	fmt.Println("Store-set style MDPT/MDST model over an instruction window")
	fmt.Println("")
	fmt.Println("Usage: mdpsim <subcommand> [flags]")
	fmt.Println("")
	fmt.Println("Subcommands:")
	fmt.Println("  run        Simulate one trace or synthetic workload")
	fmt.Println("  sweep      Run a workload across a grid of configurations")
	fmt.Println("  workloads  List the synthetic workloads")
	fmt.Println("  config     Write the default simulation config")
	fmt.Println("  history    List recorded runs")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/mdpsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/mdpsim' instead.")
	}
}
