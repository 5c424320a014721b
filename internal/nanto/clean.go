package nanto

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

func handleCleanCommand(args []string, m *Manifest) error {
	cleanCmd := flag.NewFlagSet("clean", flag.ExitOnError)
	cleanCache := cleanCmd.Bool("cache", false, "Remove dependency stage cache markers.")
	cleanDist := cleanCmd.Bool("dist", false, "Remove built package archives.")
	cleanLogs := cleanCmd.Bool("logs", false, "Remove retained build logs.")
	cleanAll := cleanCmd.Bool("all", false, "cache markers, archives and logs.")

	if err := cleanCmd.Parse(args); err != nil {
		return err
	}

	if !*cleanCache && !*cleanDist && !*cleanLogs && !*cleanAll {
		fmt.Println("Usage: nanto clean [flag]")
		fmt.Println("You must specify what to clean. Use one of the following flags:")
		cleanCmd.PrintDefaults()
		return nil
	}

	if *cleanAll {
		*cleanCache = true
		*cleanDist = true
		*cleanLogs = true
	}

	if *cleanCache {
		pattern := filepath.Join(CacheDir, m.Project+"-*.ok")
		markers, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		if len(markers) == 0 {
			colArrow.Print("-> ")
			colSuccess.Println("No cache markers to remove.")
		} else {
			cPrintf(colWarn, "This will force the next run to rebuild cached stages (%d marker(s)).\n", len(markers))
			if askForConfirmation(colArrow, "Are you sure you want to proceed?") {
				for _, marker := range markers {
					debugf("Removing cache marker: %s\n", marker)
					if err := os.Remove(marker); err != nil {
						return fmt.Errorf("failed to remove cache marker: %w", err)
					}
				}
				colArrow.Print("-> ")
				colSuccess.Println("Cache markers removed successfully.")
			} else {
				colArrow.Print("-> ")
				colSuccess.Println("Cleanup of cache markers canceled.")
			}
		}
	}

	if *cleanDist {
		distDir := filepath.Dir(m.Abs(m.Package.Output))
		cPrintf(colWarn, "This will permanently delete built archives at %s.\n", distDir)
		if askForConfirmation(colArrow, "Are you sure you want to proceed?") {
			debugf("Removing dist directory: %s\n", distDir)
			if err := os.RemoveAll(distDir); err != nil {
				return fmt.Errorf("failed to remove dist directory: %w", err)
			}
			colArrow.Print("-> ")
			colSuccess.Println("Dist directory removed successfully.")
		} else {
			colArrow.Print("-> ")
			colSuccess.Println("Cleanup of dist directory canceled.")
		}
	}

	if *cleanLogs {
		projectLogs := filepath.Join(LogDir, m.Project)
		cPrintf(colWarn, "This will permanently delete retained logs at %s.\n", projectLogs)
		if askForConfirmation(colArrow, "Are you sure you want to proceed?") {
			debugf("Removing log directory: %s\n", projectLogs)
			if err := os.RemoveAll(projectLogs); err != nil {
				return fmt.Errorf("failed to remove logs: %w", err)
			}
			colArrow.Print("-> ")
			colSuccess.Println("Retained logs removed successfully.")
		} else {
			colArrow.Print("-> ")
			colSuccess.Println("Cleanup of logs canceled.")
		}
	}

	return nil
}
