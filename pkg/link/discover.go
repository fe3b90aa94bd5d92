package link

import (
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// Known USB bridges used by hobby microcontroller boards.
var controllerVIDs = map[string]string{
	"2341": "Arduino",
	"2a03": "Arduino",
	"1a86": "CH340",
	"10c4": "Silicon Labs",
}

var controllerProducts = []string{"Arduino", "CH340", "Silicon Labs", "CP210"}

// IsController reports whether the port looks like a drive microcontroller.
func (p PortInfo) IsController() bool {
	if !p.IsUSB {
		return false
	}
	if _, ok := controllerVIDs[strings.ToLower(p.VID)]; ok {
		return true
	}
	for _, s := range controllerProducts {
		if strings.Contains(p.Product, s) {
			return true
		}
	}
	return false
}

// Board returns a short description of the detected board family.
func (p PortInfo) Board() string {
	if name, ok := controllerVIDs[strings.ToLower(p.VID)]; ok {
		return name
	}
	for _, s := range controllerProducts {
		if strings.Contains(p.Product, s) {
			return s
		}
	}
	return ""
}

// Discover lists the serial ports present on the host.
func Discover() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		// Skip Bluetooth ports on macOS
		if strings.Contains(d.Name, "Bluetooth") {
			continue
		}
		ports = append(ports, PortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return ports, nil
}

// FindController returns the first port that looks like a drive
// microcontroller.
func FindController() (PortInfo, error) {
	ports, err := Discover()
	if err != nil {
		return PortInfo{}, err
	}
	return pickController(ports)
}

func pickController(ports []PortInfo) (PortInfo, error) {
	for _, p := range ports {
		if p.IsController() {
			return p, nil
		}
	}
	return PortInfo{}, ErrNoController
}
