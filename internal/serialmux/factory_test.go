package serialmux

import (
	"errors"
	"testing"

	"go.bug.st/serial"
)

func TestNewRealSerialMux_OpenError(t *testing.T) {
	mux, err := NewRealSerialMux("/dev/nonexistent-serial-port-12345", PortOptions{})
	if err == nil {
		t.Error("Expected error when opening non-existent serial port")
		mux.Close()
	}
	if err != nil && mux != nil {
		t.Error("Expected nil mux when error is returned")
	}
}

func TestNewRealSerialMux_InvalidOptions(t *testing.T) {
	called := false
	orig := openPort
	defer func() { openPort = orig }()
	openPort = func(string, *serial.Mode) (serial.Port, error) {
		called = true
		return nil, errors.New("unexpected open")
	}

	if _, err := NewRealSerialMux("/dev/ttyUSB0", PortOptions{DataBits: 4}); err == nil {
		t.Error("expected error for invalid data bits")
	}
	if called {
		t.Error("port should not be opened with invalid options")
	}
}

func TestNewRealSerialMux_PassesMode(t *testing.T) {
	var gotPath string
	var gotMode *serial.Mode
	orig := openPort
	defer func() { openPort = orig }()
	openPort = func(path string, mode *serial.Mode) (serial.Port, error) {
		gotPath, gotMode = path, mode
		return nil, errors.New("no hardware")
	}

	_, err := NewRealSerialMux("/dev/ttyUSB0", PortOptions{})
	if err == nil {
		t.Fatal("expected open error to propagate")
	}
	if gotPath != "/dev/ttyUSB0" {
		t.Errorf("path = %q", gotPath)
	}
	if gotMode == nil || gotMode.BaudRate != 9600 {
		t.Errorf("mode = %+v, want 9600 baud", gotMode)
	}
}
