package handler

import (
	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/deppfellow/cluster-reviewer/internal/service"
	"github.com/labstack/echo/v4"
)

type AnnotateResponse struct {
	Success bool `json:"success"`
	service.AnnotateResult
}

type AnnotationHandler struct {
	Handler
	annotations *service.AnnotationService
}

func NewAnnotationHandler(s *server.Server, annotations *service.AnnotationService) *AnnotationHandler {
	return &AnnotationHandler{
		Handler:     NewHandler(s),
		annotations: annotations,
	}
}

func (h *AnnotationHandler) Annotate(c echo.Context, req *AnnotateRequest) (AnnotateResponse, error) {
	res, err := h.annotations.Annotate(service.AnnotateInput{
		Folder:            req.Folder,
		Actions:           req.Actions,
		SimpleDescription: req.SimpleDescription,
		OutputVocale:      req.OutputVocale,
	})
	if err != nil {
		return AnnotateResponse{}, err
	}
	return AnnotateResponse{Success: true, AnnotateResult: res}, nil
}

func (h *AnnotationHandler) List(c echo.Context, _ *EmptyRequest) (service.AnnotationsView, error) {
	return h.annotations.View()
}

func (h *AnnotationHandler) Delete(c echo.Context, req *DeleteAnnotationRequest) (MessageResponse, error) {
	if err := h.annotations.Delete(*req.Index); err != nil {
		return MessageResponse{}, err
	}
	return MessageResponse{Success: true, Message: "Annotation deleted"}, nil
}

func (h *AnnotationHandler) Clear(c echo.Context, _ *EmptyRequest) (MessageResponse, error) {
	if err := h.annotations.Clear(); err != nil {
		return MessageResponse{}, err
	}
	return MessageResponse{Success: true, Message: "All annotations deleted"}, nil
}

// Download returns annotations.json as an attachment.
func (h *AnnotationHandler) Download(c echo.Context, _ *EmptyRequest) ([]byte, error) {
	return h.annotations.Export()
}
