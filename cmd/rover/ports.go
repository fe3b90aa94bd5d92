package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/rover/pkg/link"
)

type PortsCommand struct{}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := link.Discover()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	fmt.Println(renderPorts(ports))
	return nil
}

func renderPorts(ports []link.PortInfo) string {
	rows := make([][]string, 0, len(ports))
	controllers := make([]bool, 0, len(ports))
	for _, p := range ports {
		usb := ""
		if p.IsUSB {
			usb = p.VID + ":" + p.PID
		}
		rows = append(rows, []string{p.Name, usb, p.Product, p.Board()})
		controllers = append(controllers, p.IsController())
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Port", "USB ID", "Product", "Board").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			if row >= 0 && row < len(controllers) && controllers[row] {
				return cellStyle.Foreground(lipgloss.Color("10"))
			}
			return cellStyle
		}).
		Render()
}
