package adminapi

import (
	"embed"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// Embedded dashboard placeholder. A future browser-based dashboard build
// output would replace dist/browser/ before compiling; until then this
// mounts a one-page placeholder pointing at the swagger UI, so the route
// space is already correct when a real dashboard build lands.
//
//go:embed dist/browser/*
var embeddedUI embed.FS

func getEmbedFS() static.ServeFileSystem {
	fs, err := static.EmbedFolder(embeddedUI, "dist/browser")
	if err != nil {
		panic("failed to get embedded dashboard filesystem: " + err.Error())
	}
	return fs
}

// mountDashboard serves the embedded static dashboard at "/", falling back
// to index.html for any non-API route so client-side routing (once a real
// SPA replaces the placeholder) works without a server round trip per route.
func mountDashboard(r *gin.Engine, logger *slog.Logger) {
	distFS := getEmbedFS()
	r.Use(static.Serve("/", distFS))

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.RequestURI, "/api") || strings.HasPrefix(c.Request.RequestURI, "/swagger") {
			return
		}
		index, err := distFS.Open("index.html")
		if err != nil {
			if logger != nil {
				logger.Error("failed to open dashboard index.html", "error", err)
			}
			c.Status(http.StatusNotFound)
			return
		}
		defer index.Close()
		stat, _ := index.Stat()
		http.ServeContent(c.Writer, c.Request, "index.html", stat.ModTime(), index)
	})
}
