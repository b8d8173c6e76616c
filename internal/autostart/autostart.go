// Package autostart starts the tray application at login on Linux, Windows and macOS
package autostart

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"
)

const (
	osLinux   = "linux"
	osWindows = "windows"
	osDarwin  = "darwin"

	runKey = `HKCU\Software\Microsoft\Windows\CurrentVersion\Run`
)

// ErrUnsupported is returned on platforms without a login item mechanism
var ErrUnsupported = errors.New("autostart is not supported on this platform")

// Entry describes the login item for one executable
type Entry struct {
	Name        string // file and registry name
	DisplayName string
	Comment     string
	Exec        string // absolute path of the executable

	goos string
	home string // overrides the user's home directory
}

// New returns the entry for the running executable
func New() (*Entry, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return &Entry{
		Name:        "glucose-calculator",
		DisplayName: "Glucose Calculator",
		Comment:     "Hypoglycaemia correction calculator",
		Exec:        execPath,
		goos:        runtime.GOOS,
	}, nil
}

// Set enables or disables the entry
func (e *Entry) Set(enabled bool) error {
	if enabled {
		return e.Enable()
	}
	return e.Disable()
}

// IsEnabled reports whether the login item exists
func (e *Entry) IsEnabled() (bool, error) {
	if e.goos == osWindows {
		return exec.Command("reg", "query", runKey, "/v", e.Name).Run() == nil, nil
	}
	path, err := e.path()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	return err == nil, nil
}

// Enable writes the login item
func (e *Entry) Enable() error {
	if e.goos == osWindows {
		//nolint:gosec // G204: Exec comes from os.Executable(), not user input
		return exec.Command("reg", "add", runKey, "/v", e.Name, "/t", "REG_SZ", "/d", e.Exec, "/f").Run()
	}

	path, err := e.path()
	if err != nil {
		return err
	}
	content, err := e.render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0600)
}

// Disable removes the login item; a missing item is not an error
func (e *Entry) Disable() error {
	if e.goos == osWindows {
		enabled, _ := e.IsEnabled()
		if !enabled {
			return nil
		}
		return exec.Command("reg", "delete", runKey, "/v", e.Name, "/f").Run()
	}

	path, err := e.path()
	if err != nil {
		return err
	}
	if e.goos == osDarwin {
		//nolint:gosec // G204: path is derived from the home directory, not user input
		_ = exec.Command("launchctl", "unload", path).Run()
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (e *Entry) homeDir() (string, error) {
	if e.home != "" {
		return e.home, nil
	}
	return os.UserHomeDir()
}

// path is the XDG autostart file on Linux and the LaunchAgent plist on macOS
func (e *Entry) path() (string, error) {
	switch e.goos {
	case osLinux:
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := e.homeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config")
		}
		return filepath.Join(configDir, "autostart", e.Name+".desktop"), nil
	case osDarwin:
		home, err := e.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "LaunchAgents", "com."+e.Name+".plist"), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, e.goos)
}

var desktopTemplate = template.Must(template.New("desktop").Parse(`[Desktop Entry]
Type=Application
Name={{.DisplayName}}
Exec={{.Exec}}
Icon={{.Name}}
Comment={{.Comment}}
Categories=Utility;MedicalSoftware;
Terminal=false
StartupNotify=false
X-GNOME-Autostart-enabled=true
`))

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.{{.Name}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`))

func (e *Entry) render() ([]byte, error) {
	tmpl := desktopTemplate
	if e.goos == osDarwin {
		tmpl = plistTemplate
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
