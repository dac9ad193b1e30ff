package input

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Keyboard events are read straight from evdev. This requires the user to be
// in the 'input' group:
//
//	sudo usermod -aG input $USER
//
// struct input_event (64-bit):
//
//	struct timeval time;  // 16 bytes
//	__u16 type;
//	__u16 code;
//	__s32 value;

const (
	eventSize = 24

	evKey        = 0x01
	keyPress     = 1
	keyBackspace = 14
)

// Keyboard feeds key presses from an evdev device into a Tracker.
type Keyboard struct {
	tracker    *Tracker
	devicePath string
	logger     *zap.Logger
}

// NewKeyboard creates a keyboard reader. devicePath may be empty to
// auto-detect.
func NewKeyboard(tracker *Tracker, devicePath string, logger *zap.Logger) *Keyboard {
	return &Keyboard{
		tracker:    tracker,
		devicePath: devicePath,
		logger:     logger.Named("keyboard"),
	}
}

// Available checks if a keyboard device can be opened.
func (k *Keyboard) Available() bool {
	if k.devicePath == "" {
		k.devicePath = findKeyboardDevice()
	}
	if k.devicePath == "" {
		return false
	}

	f, err := os.Open(k.devicePath)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Device returns the device path in use.
func (k *Keyboard) Device() string {
	return k.devicePath
}

// findKeyboardDevice finds the primary keyboard input device.
func findKeyboardDevice() string {
	matches, _ := filepath.Glob("/dev/input/by-id/*-kbd")
	if len(matches) > 0 {
		return matches[0]
	}

	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return ""
	}
	defer f.Close()

	return scanDeviceList(f)
}

// scanDeviceList picks the first keyboard handler out of
// /proc/bus/input/devices.
func scanDeviceList(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	var handler string
	var keyboard bool
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if keyboard && handler != "" {
				return handler
			}
			handler, keyboard = "", false
			continue
		}

		if strings.HasPrefix(line, "H: Handlers=") {
			for _, p := range strings.Fields(line) {
				if strings.HasPrefix(p, "event") {
					handler = "/dev/input/" + p
				}
			}
		}

		if strings.Contains(line, "EV=120013") || // typical keyboard
			(strings.HasPrefix(line, "N: Name=") && strings.Contains(strings.ToLower(line), "keyboard")) {
			keyboard = true
		}
	}
	if keyboard && handler != "" {
		return handler
	}
	return ""
}

// Run reads events until ctx is cancelled.
func (k *Keyboard) Run(ctx context.Context) error {
	if k.devicePath == "" && !k.Available() {
		return fmt.Errorf("no readable keyboard device")
	}

	f, err := os.Open(k.devicePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", k.devicePath, err)
	}

	// Reads block; closing the file is the only way to unblock them.
	stop := context.AfterFunc(ctx, func() { f.Close() })
	defer func() {
		if stop() {
			f.Close()
		}
	}()

	k.logger.Info("keyboard tracking enabled", zap.String("device", k.devicePath))
	return k.readEvents(ctx, f)
}

func (k *Keyboard) readEvents(ctx context.Context, r io.Reader) error {
	buf := make([]byte, eventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read input event: %w", err)
		}

		typ, code, value := parseEvent(buf)
		if typ != evKey || value != keyPress {
			continue
		}
		k.tracker.RecordKey(code == keyBackspace)
	}
}

func parseEvent(buf []byte) (typ, code uint16, value int32) {
	typ = binary.LittleEndian.Uint16(buf[16:18])
	code = binary.LittleEndian.Uint16(buf[18:20])
	value = int32(binary.LittleEndian.Uint32(buf[20:24]))
	return typ, code, value
}
