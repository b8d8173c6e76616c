// Package main is the entry point for the Glucose Calculator tray application
package main

import (
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/mrcode/glucose-calculator/internal/app"
	"github.com/mrcode/glucose-calculator/internal/display"
	"github.com/mrcode/glucose-calculator/internal/logging"
)

func main() {
	logger := logging.Setup(os.Getenv("GLUCOSE_LOG_LEVEL"), os.Getenv("GLUCOSE_LOG_FORMAT"))

	svc := app.NewCalculatorService(logger)

	wailsApp := application.New(application.Options{
		Name:        "Glucose Calculator",
		Description: "Dextrose and banana doses for low glucose",
		Services: []application.Service{
			application.NewService(svc),
		},
		Mac: application.MacOptions{
			ActivationPolicy: application.ActivationPolicyAccessory,
		},
	})

	systray := wailsApp.SystemTray.New()

	menu := application.NewMenu()
	menu.Add("Calculate now").OnClick(func(*application.Context) {
		res, err := svc.CalculateNow()
		if err != nil {
			logger.Warn("manual calculation failed", "error", err)
			return
		}
		logger.Info("manual calculation", "summary", display.Summary(res))
	})
	menu.Add("Send test notification").OnClick(func(*application.Context) {
		if err := svc.SendTestNotification(); err != nil {
			logger.Warn("test notification failed", "error", err)
		}
	})
	menu.AddSeparator()
	menu.Add("Quit").OnClick(func(*application.Context) {
		wailsApp.Quit()
	})
	systray.SetMenu(menu)

	svc.SetApp(wailsApp)
	svc.SetTray(systray)

	if err := wailsApp.Run(); err != nil {
		slog.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
