// Package web holds the page served by the monitor.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"runtime"
	"strconv"
)

//go:embed dist/*
var staticAssets embed.FS

// DevEnv names the variable that, when true, makes GetAssets serve the files
// from the source tree so that the page can be edited without a rebuild.
const DevEnv = "COSIT_MONITOR_DEV"

// GetAssets returns the static assets
func GetAssets() http.FileSystem {
	if isDevelopmentMode() {
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			panic("error getting path")
		}

		assetPath := path.Join(path.Dir(file), "dist")

		fmt.Fprintf(os.Stderr,
			"In monitor development mode, serving assets from %s\n", assetPath)

		return http.Dir(assetPath)
	}

	subFS, err := fs.Sub(staticAssets, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(subFS)
}

func isDevelopmentMode() bool {
	dev, err := strconv.ParseBool(os.Getenv(DevEnv))

	return err == nil && dev
}
