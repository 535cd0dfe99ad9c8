package main

import (
	"embed"
	"log"
	"os"

	"flowstate/internal/app"
	"flowstate/internal/config"
	"flowstate/internal/infrastructure/logging"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	cfg, err := config.Load(os.Getenv("FLOWSTATE_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	baseLogger := logging.NewLogger(os.Stderr, cfg.Level(), "flowstate")
	appLogger := baseLogger.With("dashboard")

	application, err := app.NewApp(cfg, appLogger)
	if err != nil {
		log.Fatal(err)
	}

	err = wails.Run(&options.App{
		Title:             "FlowState",
		Width:             320,
		Height:            260,
		MinWidth:          280,
		MinHeight:         200,
		MaxWidth:          480,
		MaxHeight:         640,
		DisableResize:     false,
		Fullscreen:        false,
		Frameless:         true,
		StartHidden:       false,
		HideWindowOnClose: false,
		AlwaysOnTop:       true,
		BackgroundColour:  &options.RGBA{R: 0, G: 0, B: 0, A: 0},
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Menu:             nil,
		Logger:           logging.NewWailsLoggerAdapter(baseLogger.With("wails")),
		LogLevel:         logger.INFO,
		OnStartup:        application.Startup,
		OnDomReady:       application.DomReady,
		OnBeforeClose:    application.BeforeClose,
		OnShutdown:       application.Shutdown,
		WindowStartState: options.Normal,
		Bind: []interface{}{
			application,
		},
		Windows: &windows.Options{
			WebviewIsTransparent: true,
			WindowIsTranslucent:  true,
			DisableWindowIcon:    true,
			ZoomFactor:           1.0,
			BackdropType:         windows.Mica,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				HideToolbarSeparator:       true,
			},
			Appearance:           mac.NSAppearanceNameDarkAqua,
			WebviewIsTransparent: true,
			WindowIsTranslucent:  true,
			About: &mac.AboutInfo{
				Title:   "FlowState",
				Message: "Browser time accounting",
			},
		},
	})

	if err != nil {
		log.Fatal(err)
	}
}
