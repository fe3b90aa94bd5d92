package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/rover/pkg/link"
	"github.com/gwillem/rover/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// autoDetect is the port choice that leaves detection to run time.
const autoDetect = ""

var baudRates = []int{9600, 19200, 38400, 57600, 115200}

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Rover Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	existing := robot.ConfigExists(opts.Config)
	cfg, err := robot.LoadOrDefault(opts.Config)
	if err != nil {
		return fmt.Errorf("load config %q: %w", opts.Config, err)
	}
	if existing {
		fmt.Println(dimStyle.Render(fmt.Sprintf("Updating existing %s", opts.Config)))
	} else {
		fmt.Println(dimStyle.Render(fmt.Sprintf("Creating %s", opts.Config)))
	}
	fmt.Println()

	// Step 1: Find the microcontroller
	fmt.Println(subHeaderStyle.Render("━━━ Serial link ━━━"))
	fmt.Println()
	portOptions := scanPorts(cfg.Serial.Port)

	// Step 2: Ask for the rest
	model := cfg.Vision.Model
	failClosed := cfg.Policy.FailClosed
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the microcontroller on?").
				Description("Boards with a known USB bridge are marked").
				Options(portOptions...).
				Value(&cfg.Serial.Port),
			huh.NewSelect[int]().
				Title("Baud rate").
				Description("Must match Serial.begin() in the firmware").
				Options(baudOptions()...).
				Value(&cfg.Serial.BaudRate),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Detection model").
				Description("Path to the trained weights file").
				Value(&model).
				Validate(validateModelPath),
			huh.NewConfirm().
				Title("Stop when the distance sensor is silent?").
				Description("By default a missing reading is treated as a clear path").
				Affirmative("Stop").
				Negative("Keep driving").
				Value(&failClosed),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println()
			return nil
		}
		return err
	}
	cfg.Vision.Model = model
	cfg.Policy.FailClosed = failClosed

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(renderSummary(cfg))
	fmt.Println()
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start driving with: " + headerStyle.Render("rover run"))

	return nil
}

// scanPorts lists the host's serial ports as form options. The current
// port is kept as an option even if it is not plugged in right now.
func scanPorts(current string) []huh.Option[string] {
	fmt.Println("Scanning serial ports...")

	ports, err := link.Discover()
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  Port scan failed: %v", err)))
	}

	var options []huh.Option[string]
	seen := false
	for _, p := range ports {
		label := p.Name
		if p.IsController() {
			label = fmt.Sprintf("%s  (%s)", p.Name, p.Board())
			fmt.Printf("  Found %s board on %s\n", p.Board(), p.Name)
		}
		options = append(options, huh.NewOption(label, p.Name))
		if p.Name == current {
			seen = true
		}
	}
	if current != autoDetect && !seen {
		options = append(options, huh.NewOption(current+"  (not connected)", current))
	}
	options = append(options, huh.NewOption("Auto-detect when starting", autoDetect))

	if len(ports) == 0 {
		fmt.Println(warnStyle.Render("  No serial ports found. Is the board plugged in?"))
	}
	fmt.Println()
	return options
}

func baudOptions() []huh.Option[int] {
	options := make([]huh.Option[int], 0, len(baudRates))
	for _, b := range baudRates {
		options = append(options, huh.NewOption(strconv.Itoa(b), b))
	}
	return options
}

func validateModelPath(path string) error {
	if path == "" {
		return errors.New("model path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("model not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

func renderSummary(cfg *robot.Config) string {
	port := cfg.Serial.Port
	if port == autoDetect {
		port = "auto-detect"
	}
	missing := "drive on"
	if cfg.Policy.FailClosed {
		missing = "stop"
	}

	rows := [][]string{
		{"Port", port},
		{"Baud rate", strconv.Itoa(cfg.Serial.BaudRate)},
		{"Model", cfg.Vision.Model},
		{"Camera", strconv.Itoa(cfg.Vision.Camera)},
		{"Obstacle distance", fmt.Sprintf("%.0f cm", cfg.Policy.NearObstacleCM)},
		{"Confidence threshold", fmt.Sprintf("%.2f", cfg.Policy.ConfidenceThreshold)},
		{"Missing reading", missing},
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Setting", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			if col == 0 {
				return cellStyle.Foreground(lipgloss.Color("14"))
			}
			return cellStyle
		})
	return t.Render()
}
