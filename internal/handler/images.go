package handler

import (
	"net/http"
	"path"

	"github.com/deppfellow/cluster-reviewer/internal/errs"
	"github.com/deppfellow/cluster-reviewer/internal/fserr"
	"github.com/deppfellow/cluster-reviewer/internal/repository"
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/labstack/echo/v4"
)

// ImageHandler serves cluster images from the base folder. Only image
// files are served; directories are never listed.
type ImageHandler struct {
	Handler
}

func NewImageHandler(s *server.Server) *ImageHandler {
	return &ImageHandler{Handler: NewHandler(s)}
}

func (h *ImageHandler) Serve(c echo.Context) error {
	// Cleaning against "/" first keeps ".." from climbing out of the base folder.
	rel := path.Clean("/" + c.Param("*"))
	if rel == "/" || !repository.IsImage(rel) {
		return errs.NewNotFoundError("Image not found", true, nil)
	}
	name := path.Join("/", h.server.Settings.Current().BaseFolder, rel)

	f, err := h.server.FS.Open(name)
	if err != nil {
		return fserr.Wrap("open", "image", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errs.NewNotFoundError("Image not found", true, nil)
	}

	c.Response().Header().Set("Cache-Control", "no-cache")
	http.ServeContent(c.Response(), c.Request(), info.Name(), info.ModTime(), f)
	return nil
}
