package handler

import (
	"fmt"

	"github.com/deppfellow/cluster-reviewer/internal/server"
	"github.com/deppfellow/cluster-reviewer/internal/service"
	"github.com/labstack/echo/v4"
)

type ReviewHandler struct {
	Handler
	review *service.ReviewService
}

func NewReviewHandler(s *server.Server, review *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{
		Handler: NewHandler(s),
		review:  review,
	}
}

func (h *ReviewHandler) Describe(c echo.Context, req *DescribeRequest) (MessageResponse, error) {
	if err := h.review.Describe(req.Folder, req.Description); err != nil {
		return MessageResponse{}, err
	}
	return MessageResponse{Success: true, Message: fmt.Sprintf("Description saved for %s", req.Folder)}, nil
}

func (h *ReviewHandler) SaveQuickDescription(c echo.Context, req *QuickDescriptionRequest) (MessageResponse, error) {
	if err := h.review.SaveQuickDescription(req.Folder, req.Description); err != nil {
		return MessageResponse{}, err
	}
	if req.Description == "" {
		return MessageResponse{Success: true, Message: "Quick description removed"}, nil
	}
	return MessageResponse{Success: true, Message: "Quick description saved"}, nil
}

func (h *ReviewHandler) Skip(c echo.Context, req *FolderRequest) (MessageResponse, error) {
	added, err := h.review.Skip(req.Folder)
	if err != nil {
		return MessageResponse{}, err
	}
	if !added {
		return MessageResponse{Success: true, Message: fmt.Sprintf("%s was already skipped", req.Folder)}, nil
	}
	return MessageResponse{Success: true, Message: fmt.Sprintf("%s skipped", req.Folder)}, nil
}

func (h *ReviewHandler) Unskip(c echo.Context, req *FolderRequest) (MessageResponse, error) {
	removed, err := h.review.Unskip(req.Folder)
	if err != nil {
		return MessageResponse{}, err
	}
	if !removed {
		return MessageResponse{Success: true, Message: fmt.Sprintf("%s was not skipped", req.Folder)}, nil
	}
	return MessageResponse{Success: true, Message: fmt.Sprintf("%s is back in the review queue", req.Folder)}, nil
}

func (h *ReviewHandler) State(c echo.Context, _ *EmptyRequest) (service.ReviewState, error) {
	return h.review.State()
}
