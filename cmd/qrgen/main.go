package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"officeclock/internal/config"
	"officeclock/internal/directory"
	"officeclock/internal/qrcode"
)

var rootCmd = &cobra.Command{
	Use:   "qrgen",
	Short: "Render feedback QR codes for printing",
	Long: `Render PNG QR codes that open the feedback page.

One general code is written, plus one per employee in the directory.

Examples:
  # Use PUBLIC_BASE_URL and the embedded directory
  qrgen --out qr

  # Only one employee, custom size
  qrgen --emp EMP-0002 --size 1024`,
	RunE: runQRGen,
}

func init() {
	rootCmd.Flags().String("out", "qr", "Output directory")
	rootCmd.Flags().String("base-url", "", "Deep link base URL (default PUBLIC_BASE_URL)")
	rootCmd.Flags().String("directory", "", "YAML employee directory (default DIRECTORY_FILE or embedded)")
	rootCmd.Flags().String("emp", "", "Render only this employee id")
	rootCmd.Flags().Int("size", qrcode.DefaultSize, "Edge length in pixels")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runQRGen(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	baseURL, _ := cmd.Flags().GetString("base-url")
	dirFile, _ := cmd.Flags().GetString("directory")
	only, _ := cmd.Flags().GetString("emp")
	size, _ := cmd.Flags().GetInt("size")

	cfg := config.Load()
	if baseURL == "" {
		baseURL = cfg.PublicBaseURL
	}
	if dirFile == "" {
		dirFile = cfg.DirectoryFile
	}
	dir, err := directory.Load(dirFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var targets []directory.Entry
	if only != "" {
		name, ok := dir.Name(only)
		if !ok {
			return fmt.Errorf("employee %q not in directory", only)
		}
		targets = append(targets, directory.Entry{EmployeeID: only, EmployeeName: name})
	} else {
		// General feedback first, then one code per employee.
		targets = append(targets, directory.Entry{})
		targets = append(targets, dir.Entries()...)
	}

	for _, t := range targets {
		link, err := qrcode.FeedbackURL(baseURL, t.EmployeeID)
		if err != nil {
			return err
		}
		path := filepath.Join(out, fileName(t.EmployeeID))
		if err := writePNG(path, link, size); err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", path, link)
	}
	return nil
}

func fileName(employeeID string) string {
	if employeeID == "" {
		return "feedback_general.png"
	}
	return "feedback_" + strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(employeeID) + ".png"
}

func writePNG(path, link string, size int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := qrcode.WritePNG(f, link, size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
