// Package rover drives a small wheeled robot from a camera and a distance
// sensor.
//
// A microcontroller on the serial port reports distances as "DIST:<cm>" lines
// and accepts one command per line (FORWARD, BACKWARD, TURN_LEFT, TURN_RIGHT,
// STOP). Each cycle the rover reads the latest distance, captures a camera
// frame, runs object detection on it and picks what to do next.
//
// # Installation
//
//	go install github.com/gwillem/rover/cmd/rover@latest
//
// # Usage
//
// First, run setup to pick the serial port and detection model:
//
//	rover setup
//
// Then start driving:
//
//	rover run
//
// # Detector process
//
// Camera capture and object detection run in a separate process, named by
// vision.command in rover.yaml and started with
//
//	<command> --model <path> --imgsz <n> --conf <floor> --camera <index>
//
// Requests and replies are msgpack maps, each preceded by a 4-byte
// big-endian length, on the process stdin and stdout. Requests carry "op":
// "open", "capture", "detect" (with "seq") and "close". Replies carry "ok"
// and "error", plus "stage" ("model" or "camera") for open, "frame" for
// capture and "detections" for detect. Stderr lines end up in the rover log.
// vision.Serve implements the detector side for Go hosts.
//
// cmd/rover-detector is a scripted detector that replays detections from a
// YAML scene, for bench tests without a camera:
//
//	ROVER_SCENE=scene.yaml rover run
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/rover: CLI with setup, ports and run commands
//   - cmd/rover-detector: Scripted detector process
//   - pkg/link: Serial link to the microcontroller
//   - pkg/telemetry: Distance line parsing
//   - pkg/vision: Camera and detector process
//   - pkg/drive: Commands, decision rules and dispatch
//   - pkg/pilot: Control loop and shutdown sequence
//   - pkg/robot: Configuration
package rover
