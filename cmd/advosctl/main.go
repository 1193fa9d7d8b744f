// Command advosctl boots the simulated kernel and runs the
// end-to-end scenarios named in spec.md §8, printing each one's
// result. It stands in for the boot trampoline and initramfs loader
// named as out-of-scope external collaborators in spec.md §1 — there
// is no real bootloader here, so this host-side harness is the thing
// that calls kernel.Init and then drives a handful of scripted
// scenarios through it.
//
// Grounded on ja7ad-consumption's cmd/consumption/main.go for the
// github.com/spf13/cobra command shape: one root command, flag-bound
// options, a RunE that does the work and returns an error cobra
// prints and turns into a nonzero exit.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kernel"
)

func main() {
	var configPath string
	var scenario string

	root := &cobra.Command{
		Use:   "advosctl",
		Short: "boot the simulated kernel and run its end-to-end scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, scenario)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "TOML boot configuration (defaults to a built-in single-zone config)")
	root.Flags().StringVar(&scenario, "scenario", "all", "scenario to run: boot, wire, nanosleep, devfs, fork, buddy, or all")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// defaultConfig approximates spec.md §8 scenario 1's memory map: 2.1
// GiB of the kernel zone (550502 4 KiB pages).
const defaultConfig = `num_cpu = 1

[[zones]]
name = "kernel"
pages = 550502
`

func run(configPath, scenario string) error {
	doc := []byte(defaultConfig)
	if configPath != "" {
		var err error
		doc, err = os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("advosctl: reading config: %w", err)
		}
	}

	cfg, err := kernel.LoadConfig(doc)
	if err != nil {
		return fmt.Errorf("advosctl: parsing config: %w", err)
	}

	k, err := kernel.Init(cfg, nil)
	if err != nil {
		return fmt.Errorf("advosctl: boot failed: %w", err)
	}

	scenarios := map[string]func(*kernel.Kvar_t) error{
		"boot":      scenarioBoot,
		"wire":      scenarioWire,
		"nanosleep": scenarioNanosleep,
		"devfs":     scenarioDevfs,
		"fork":      scenarioFork,
		"buddy":     scenarioBuddy,
	}

	names := []string{"boot", "wire", "nanosleep", "devfs", "fork", "buddy"}
	if scenario != "all" {
		if _, ok := scenarios[scenario]; !ok {
			return fmt.Errorf("advosctl: unknown scenario %q", scenario)
		}
		names = []string{scenario}
	}

	failed := false
	for _, name := range names {
		if err := scenarios[name](k); err != nil {
			fmt.Printf("FAIL %-10s %v\n", name, err)
			failed = true
			continue
		}
		fmt.Printf("PASS %-10s\n", name)
	}
	if failed {
		return fmt.Errorf("advosctl: one or more scenarios failed")
	}
	return nil
}
